// Package perf derives trading performance from order and fill history.
// Reports are always recomputed from source records, never mutated in
// place.
package perf

import (
	"math"
	"sort"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// A trade is one closed round trip: a ticker's position leaving and
// returning to flat. Amounts are in cents.
type trade struct {
	gross float64
	fees  float64
	net   float64
}

// Compute builds a performance report from fills inside [periodStart,
// periodEnd) (zero bounds are open). The order list supplies the
// direction of each fill; fills whose order is unknown are skipped.
// Only closed round trips count, so an open position contributes
// nothing until it is flattened.
func Compute(ordersList []model.Order, fills []model.Fill, periodStart, periodEnd int64) model.PerformanceSnapshot {
	byID := make(map[string]model.Order, len(ordersList)*2)
	for _, o := range ordersList {
		byID[o.LocalID] = o
		if o.ExchangeID != "" {
			byID[o.ExchangeID] = o
		}
	}

	sorted := make([]model.Fill, 0, len(fills))
	for _, f := range fills {
		if periodStart != 0 && f.TS < periodStart {
			continue
		}
		if periodEnd != 0 && f.TS >= periodEnd {
			continue
		}
		sorted = append(sorted, f)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TS < sorted[j].TS })

	trades := closeRoundTrips(byID, sorted)

	return summarize(trades, periodStart, periodEnd)
}

type tripState struct {
	net   int
	avg   float64
	gross float64
	fees  float64
}

func closeRoundTrips(byID map[string]model.Order, fills []model.Fill) []trade {
	var trades []trade
	trips := make(map[string]*tripState)

	for _, f := range fills {
		o, ok := byID[f.OrderID]
		if !ok {
			continue
		}

		delta := f.Quantity
		price := float64(f.Price)
		if o.Side == model.SideNo {
			price = 100 - price
		}
		if (o.Side == model.SideYes) != (o.Action == model.ActionBuy) {
			delta = -delta
		}

		trip, ok := trips[f.Ticker]
		if !ok {
			trip = &tripState{}
			trips[f.Ticker] = trip
		}
		trip.fees += f.Fee

		switch {
		case trip.net == 0 || (trip.net > 0) == (delta > 0):
			oldAbs, addAbs := abs(trip.net), abs(delta)
			trip.avg = (trip.avg*float64(oldAbs) + price*float64(addAbs)) / float64(oldAbs+addAbs)
			trip.net += delta
		default:
			closed := min(abs(delta), abs(trip.net))
			if trip.net > 0 {
				trip.gross += float64(closed) * (price - trip.avg)
			} else {
				trip.gross += float64(closed) * (trip.avg - price)
			}
			trip.net += delta

			if trip.net == 0 {
				trades = append(trades, trade{gross: trip.gross, fees: trip.fees, net: trip.gross - trip.fees})
				trips[f.Ticker] = &tripState{}
			} else if abs(delta) > closed {
				// Flipped through flat: close the trip and start the
				// residue fresh at the fill price.
				trades = append(trades, trade{gross: trip.gross, fees: trip.fees, net: trip.gross - trip.fees})
				trips[f.Ticker] = &tripState{net: trip.net, avg: price}
			}
		}
	}

	return trades
}

func summarize(trades []trade, periodStart, periodEnd int64) model.PerformanceSnapshot {
	snap := model.PerformanceSnapshot{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Trades:      len(trades),
	}
	if len(trades) == 0 {
		return snap
	}

	var winSum, lossSum, grossProfit, grossLoss float64
	nets := make([]float64, len(trades))
	for i, tr := range trades {
		nets[i] = tr.net
		snap.GrossPnL += tr.gross
		snap.TotalFees += tr.fees

		if tr.net > 0 {
			snap.Wins++
			winSum += tr.net
		} else {
			snap.Losses++
			lossSum += tr.net
		}
		if tr.gross > 0 {
			grossProfit += tr.gross
		} else {
			grossLoss -= tr.gross
		}
	}

	snap.NetPnL = snap.GrossPnL - snap.TotalFees
	snap.WinRate = float64(snap.Wins) / float64(snap.Trades)
	if snap.Wins > 0 {
		snap.AvgWin = winSum / float64(snap.Wins) / 100
	}
	if snap.Losses > 0 {
		snap.AvgLoss = lossSum / float64(snap.Losses) / 100
	}
	snap.SharpeRatio = sharpe(nets)
	snap.MaxDrawdown = maxDrawdown(nets) / 100
	if grossLoss > 0 {
		snap.ProfitFactor = grossProfit / grossLoss
	}

	// Money fields report in dollars.
	snap.GrossPnL /= 100
	snap.TotalFees /= 100
	snap.NetPnL /= 100

	return snap
}

// sharpe is the per-trade mean over standard deviation of net returns,
// 0 when fewer than two trades or when returns never vary.
func sharpe(nets []float64) float64 {
	if len(nets) < 2 {
		return 0
	}
	var mean float64
	for _, v := range nets {
		mean += v
	}
	mean /= float64(len(nets))

	var variance float64
	for _, v := range nets {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(nets) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

// maxDrawdown is the largest peak-to-trough drop of the cumulative net
// P&L curve, reported as a positive number in cents.
func maxDrawdown(nets []float64) float64 {
	var cum, peak, maxDD float64
	for _, v := range nets {
		cum += v
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
