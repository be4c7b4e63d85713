package history

import "volumeSpikeBot/internal/domain"

// Window is an ordered bar sequence, oldest first, whose most recent element
// may still be forming.
type Window struct {
	bars []*domain.Kline
}

// NewWindow wraps an ordered bar slice.
func NewWindow(bars []*domain.Kline) Window {
	return Window{bars: bars}
}

// Bars returns the underlying sequence.
func (w Window) Bars() []*domain.Kline {
	return w.bars
}

// Len returns the number of bars in the window.
func (w Window) Len() int {
	return len(w.bars)
}

// LastClosedIndex is the index of the second-to-last bar, or -1 if there is none.
func (w Window) LastClosedIndex() int {
	return len(w.bars) - 2
}

// LastClosed returns the second-to-last bar; the last bar is treated as forming.
func (w Window) LastClosed() *domain.Kline {
	i := w.LastClosedIndex()
	if i < 0 {
		return nil
	}
	return w.bars[i]
}

// Trailing returns up to n bars that precede the excludeRecent most recent bars.
// Trailing(3, 2) on [a b c d e f] yields [b c d].
func (w Window) Trailing(n, excludeRecent int) []*domain.Kline {
	lo, hi := TrailingBounds(len(w.bars), n, excludeRecent)
	return w.bars[lo:hi]
}

// TrailingBounds returns the half-open index range used by Trailing.
func TrailingBounds(length, n, excludeRecent int) (int, int) {
	hi := length - excludeRecent
	if hi < 0 {
		hi = 0
	}
	lo := hi - n
	if lo < 0 {
		lo = 0
	}
	return lo, hi
}

// Closed wraps a sequence whose final bar has already closed. A flat forming
// bar is appended so that LastClosed addresses the final element.
func Closed(bars []*domain.Kline) Window {
	if len(bars) == 0 {
		return Window{}
	}
	last := bars[len(bars)-1]
	forming := &domain.Kline{
		OpenTime: last.CloseTime,
		Symbol:   last.Symbol,
		Interval: last.Interval,
		Open:     last.Close,
		High:     last.Close,
		Low:      last.Close,
		Close:    last.Close,
	}
	out := make([]*domain.Kline, len(bars), len(bars)+1)
	copy(out, bars)
	return Window{bars: append(out, forming)}
}
