package market

// CalculateImbalance calculates the imbalance between bid and ask volumes
// Imbalance = (BidVol - AskVol) / (BidVol + AskVol)
func CalculateImbalance(bidVolumeTop float64, askVolumeTop float64) float64 {
	totalVolume := bidVolumeTop + askVolumeTop
	if totalVolume <= 0 {
		return 0
	}
	return (bidVolumeTop - askVolumeTop) / totalVolume
}

// ImbalanceByLevels sums the first `levels` levels on each side.
func ImbalanceByLevels(v BookView, levels int) float64 {
	if v.Empty() || levels <= 0 {
		return 0
	}
	var bidVol, askVol float64
	for i, l := range v.Bids {
		if i >= levels {
			break
		}
		bidVol += l.Size
	}
	for i, l := range v.Asks {
		if i >= levels {
			break
		}
		askVol += l.Size
	}
	return CalculateImbalance(bidVol, askVol)
}

// ImbalanceByVolume accumulates each side up to targetVolume.
func ImbalanceByVolume(v BookView, targetVolume float64) float64 {
	if v.Empty() || targetVolume <= 0 {
		return 0
	}
	return CalculateImbalance(cumulative(v.Bids, targetVolume), cumulative(v.Asks, targetVolume))
}

func cumulative(levels []Level, target float64) float64 {
	rem := target
	vol := 0.0
	for _, l := range levels {
		if rem <= 0 {
			break
		}
		take := min(rem, l.Size)
		vol += take
		rem -= take
	}
	return vol
}

// CalculateImbalanceFromOrderBook calculates imbalance using full order book data
// levels specifies how many levels to consider from the top
func CalculateImbalanceFromOrderBook(book *OrderBook, levels int) float64 {
	if book == nil || levels <= 0 {
		return 0
	}
	return ImbalanceByLevels(book.View(levels), levels)
}
