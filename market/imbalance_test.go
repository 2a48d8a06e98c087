package market

import (
	"math"
	"testing"
)

func TestCalculateImbalance(t *testing.T) {
	tests := []struct {
		name      string
		bidVolume float64
		askVolume float64
		expected  float64
	}{
		{
			name:      "Equal volumes",
			bidVolume: 100,
			askVolume: 100,
			expected:  0,
		},
		{
			name:      "More bid volume",
			bidVolume: 150,
			askVolume: 100,
			expected:  0.2,
		},
		{
			name:      "More ask volume",
			bidVolume: 100,
			askVolume: 150,
			expected:  -0.2,
		},
		{
			name:      "Zero volumes",
			bidVolume: 0,
			askVolume: 0,
			expected:  0,
		},
		{
			name:      "One zero volume",
			bidVolume: 100,
			askVolume: 0,
			expected:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateImbalance(tt.bidVolume, tt.askVolume)
			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("CalculateImbalance(%f, %f) = %f, want %f",
					tt.bidVolume, tt.askVolume, result, tt.expected)
			}
		})
	}
}

func TestImbalanceByLevels(t *testing.T) {
	v := NewBookView(
		[]Level{{100, 3}, {99, 1}},
		[]Level{{101, 1}, {102, 1}},
	)
	if got := ImbalanceByLevels(v, 1); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("1 level = %f, want 0.5", got)
	}
	if got := ImbalanceByLevels(v, 2); math.Abs(got-(4.0-2.0)/6.0) > 1e-12 {
		t.Errorf("2 levels = %f", got)
	}
	if got := ImbalanceByLevels(v, 0); got != 0 {
		t.Errorf("0 levels = %f, want 0", got)
	}
	if got := ImbalanceByLevels(NewBookView(nil, []Level{{101, 1}}), 1); got != 0 {
		t.Errorf("one-sided book = %f, want 0", got)
	}
}

func TestImbalanceByVolume(t *testing.T) {
	v := NewBookView(
		[]Level{{100, 0.4}, {99, 5}},
		[]Level{{101, 0.2}},
	)
	// bid side reaches 1.0, ask side only 0.2
	want := (1.0 - 0.2) / 1.2
	if got := ImbalanceByVolume(v, 1); math.Abs(got-want) > 1e-12 {
		t.Errorf("ImbalanceByVolume = %f, want %f", got, want)
	}
	if got := ImbalanceByVolume(v, 0); got != 0 {
		t.Errorf("zero target = %f, want 0", got)
	}
}

func TestCalculateImbalanceFromOrderBook(t *testing.T) {
	book := NewOrderBook()
	book.ApplyDelta(map[float64]float64{100: 10, 99: 20}, map[float64]float64{101: 5, 102: 15})

	if got := CalculateImbalanceFromOrderBook(book, 1); math.Abs(got-(10.0-5.0)/15.0) > 1e-12 {
		t.Errorf("1 level = %f", got)
	}
	if got := CalculateImbalanceFromOrderBook(book, 10); math.Abs(got-(30.0-20.0)/50.0) > 1e-12 {
		t.Errorf("10 levels = %f", got)
	}
	if got := CalculateImbalanceFromOrderBook(nil, 1); got != 0 {
		t.Errorf("nil book = %f, want 0", got)
	}
	if got := CalculateImbalanceFromOrderBook(book, 0); got != 0 {
		t.Errorf("0 levels = %f, want 0", got)
	}
}
