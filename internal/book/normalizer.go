package book

import (
	"errors"
	"fmt"

	"github.com/rickgao/kalshi-trader/internal/model"
)

var (
	// ErrReciprocalViolation marks a book whose YES and NO legs disagree
	// beyond the configured tolerance.
	ErrReciprocalViolation = errors.New("reciprocal pricing violation")

	// ErrCrossedBook marks a book whose best bid is above its best ask.
	ErrCrossedBook = errors.New("crossed book")

	// ErrPriceOutOfRange marks a level priced outside 1-99 cents.
	ErrPriceOutOfRange = errors.New("price out of range")
)

// PriceLevel is one price level of a raw book side.
type PriceLevel struct {
	Price int // Cents (1-99)
	Size  int // Contracts resting at this price
}

// RawBook is the unnormalized per-outcome book for one ticker as reported
// by the market data collaborator. Ask levels may be absent; they are then
// derived from the opposing side's bids.
type RawBook struct {
	Ticker  string
	TS      int64 // µs since epoch
	YesBids []PriceLevel
	YesAsks []PriceLevel
	NoBids  []PriceLevel
	NoAsks  []PriceLevel
	Volume  int64
}

// Normalizer converts raw books into canonical snapshots. The zero value
// enforces exact reciprocity (tolerance 0).
type Normalizer struct {
	// Tolerance is the largest allowed deviation, in cents, of
	// yes_bid+no_ask and yes_ask+no_bid from 100.
	Tolerance int
}

// Normalize produces a canonical MarketSnapshot from a raw book, or an
// error when the book is internally inconsistent. It is a pure function.
func (n Normalizer) Normalize(raw RawBook) (model.MarketSnapshot, error) {
	if raw.Ticker == "" {
		return model.MarketSnapshot{}, errors.New("raw book has no ticker")
	}

	yesBid, err := bestBid(raw.YesBids)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("yes bids: %w", err)
	}
	noBid, err := bestBid(raw.NoBids)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("no bids: %w", err)
	}
	yesAsk, err := bestAsk(raw.YesAsks)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("yes asks: %w", err)
	}
	noAsk, err := bestAsk(raw.NoAsks)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("no asks: %w", err)
	}

	// Reject inconsistent inputs before deriving anything. Each check
	// applies only when both legs of the reciprocal pair were reported.
	if yesAsk > 0 && noBid > 0 && abs(yesAsk+noBid-100) > n.Tolerance {
		return model.MarketSnapshot{}, fmt.Errorf("%w: yes_ask(%d)+no_bid(%d) != 100",
			ErrReciprocalViolation, yesAsk, noBid)
	}
	if yesBid > 0 && noAsk > 0 && abs(yesBid+noAsk-100) > n.Tolerance {
		return model.MarketSnapshot{}, fmt.Errorf("%w: yes_bid(%d)+no_ask(%d) != 100",
			ErrReciprocalViolation, yesBid, noAsk)
	}

	// Derive missing legs from the reported ones.
	if yesAsk == 0 && noBid > 0 {
		yesAsk = 100 - noBid
	}
	if noAsk == 0 && yesBid > 0 {
		noAsk = 100 - yesBid
	}
	if yesBid == 0 && noAsk > 0 {
		yesBid = 100 - noAsk
	}
	if noBid == 0 && yesAsk > 0 {
		noBid = 100 - yesAsk
	}

	if yesBid > 0 && yesAsk > 0 && yesBid > yesAsk {
		return model.MarketSnapshot{}, fmt.Errorf("%w: yes %d/%d", ErrCrossedBook, yesBid, yesAsk)
	}

	return model.MarketSnapshot{
		Ticker: raw.Ticker,
		TS:     raw.TS,
		YesBid: yesBid,
		YesAsk: yesAsk,
		NoBid:  noBid,
		NoAsk:  noAsk,
		Volume: raw.Volume,
	}, nil
}

// bestBid returns the highest bid price, 0 for an empty side.
func bestBid(levels []PriceLevel) (int, error) {
	best := 0
	for _, l := range levels {
		if l.Price < 1 || l.Price > 99 {
			return 0, fmt.Errorf("%w: %d", ErrPriceOutOfRange, l.Price)
		}
		if l.Size <= 0 {
			continue
		}
		if l.Price > best {
			best = l.Price
		}
	}
	return best, nil
}

// bestAsk returns the lowest ask price, 0 for an empty side.
func bestAsk(levels []PriceLevel) (int, error) {
	best := 0
	for _, l := range levels {
		if l.Price < 1 || l.Price > 99 {
			return 0, fmt.Errorf("%w: %d", ErrPriceOutOfRange, l.Price)
		}
		if l.Size <= 0 {
			continue
		}
		if best == 0 || l.Price < best {
			best = l.Price
		}
	}
	return best, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
