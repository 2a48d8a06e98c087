package risk

import (
	"errors"
	"testing"
)

func TestNotionalGuard(t *testing.T) {
	g := NotionalGuard{MaxNotional: 1_000_000}
	tests := []struct {
		name    string
		e       Exposure
		wantErr bool
	}{
		{"flat", Exposure{Position: 0, FairPrice: 50000}, false},
		{"at limit", Exposure{Position: 20, FairPrice: 50000}, false},
		{"long over", Exposure{Position: 20.1, FairPrice: 50000}, true},
		{"short over", Exposure{Position: -21, FairPrice: 50000}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(tt.e)
			if tt.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrNotionalExceed) {
				t.Fatalf("unexpected error kind: %v", err)
			}
		})
	}
}
