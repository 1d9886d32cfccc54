package scoring

import "updown-trader/internal/domain"

// DepthRatioSaturated stands in for the ratio when the opposing side has
// no resting volume inside the scan band.
const DepthRatioSaturated = 10.0

// DepthScan is the result of one order-book barrier scan.
type DepthScan struct {
	BidVolume float64
	AskVolume float64
	Ratio     float64
}

// ScanDepth analyzes the underlying book within the immediate volatility
// range only: levels further than the scan depth from the current price
// are ignored so distant walls cannot dominate the ratio. The scan depth
// is the ATR when available, else 0.1% of the price.
//
// For an Up bet, support is bid volume just below the price and the
// opposition is ask volume just above; ratio = bids/asks. Down inverts
// the ratio. ok is false when no book is available.
func ScanDepth(book *domain.BookSnapshot, price float64, atr *float64, dir domain.Direction) (DepthScan, bool) {
	if book == nil || price <= 0 {
		return DepthScan{}, false
	}

	depth := price * 0.001
	if atr != nil && *atr > 0 {
		depth = *atr
	}

	var scan DepthScan
	for _, l := range book.Bids {
		if l.Price > price-depth && l.Price < price {
			scan.BidVolume += l.Size
		}
	}
	for _, l := range book.Asks {
		if l.Price > price && l.Price < price+depth {
			scan.AskVolume += l.Size
		}
	}

	if dir == domain.DirectionUp {
		if scan.AskVolume <= 0 {
			scan.Ratio = DepthRatioSaturated
		} else {
			scan.Ratio = scan.BidVolume / scan.AskVolume
		}
	} else {
		if scan.BidVolume <= 0 {
			scan.Ratio = DepthRatioSaturated
		} else {
			scan.Ratio = scan.AskVolume / scan.BidVolume
		}
	}

	return scan, true
}
