package domain

// PriceLevel is one price+size entry in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookSnapshot is a depth snapshot for one instrument, best levels first.
type BookSnapshot struct {
	Symbol      string // underlying symbol or contract token id
	Bids        []PriceLevel
	Asks        []PriceLevel
	TimestampMs int64
}

// BestBid returns the highest bid, if any.
func (b *BookSnapshot) BestBid() (float64, bool) {
	if b == nil || len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the lowest ask, if any.
func (b *BookSnapshot) BestAsk() (float64, bool) {
	if b == nil || len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// BidVolumeWithin sums bid size with price in [lo, hi].
func (b *BookSnapshot) BidVolumeWithin(lo, hi float64) float64 {
	if b == nil {
		return 0
	}
	var sum float64
	for _, l := range b.Bids {
		if l.Price >= lo && l.Price <= hi {
			sum += l.Size
		}
	}
	return sum
}

// AskVolumeWithin sums ask size with price in [lo, hi].
func (b *BookSnapshot) AskVolumeWithin(lo, hi float64) float64 {
	if b == nil {
		return 0
	}
	var sum float64
	for _, l := range b.Asks {
		if l.Price >= lo && l.Price <= hi {
			sum += l.Size
		}
	}
	return sum
}

// Quote is a top-of-book pair for one contract token.
type Quote struct {
	TokenID     string
	Bid         float64
	Ask         float64
	TimestampMs int64
}

// HasAsk reports whether the ask side is populated.
func (q *Quote) HasAsk() bool { return q != nil && q.Ask > 0 }

// HasBid reports whether the bid side is populated.
func (q *Quote) HasBid() bool { return q != nil && q.Bid > 0 }
