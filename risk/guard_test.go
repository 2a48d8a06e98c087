package risk

import (
	"errors"
	"testing"
)

type stubGuard struct {
	err error
}

func (s stubGuard) Check(Exposure) error {
	return s.err
}

func TestMultiGuard(t *testing.T) {
	g := MultiGuard{
		Guards: []Guard{
			stubGuard{},                       // pass
			nil,                               // skipped
			stubGuard{err: ErrNotionalExceed}, // fail
		},
	}
	if err := g.Check(Exposure{}); !errors.Is(err, ErrNotionalExceed) {
		t.Fatalf("expected notional error, got %v", err)
	}
}

func TestGateIsNotSticky(t *testing.T) {
	gate := &Gate{Guard: BuildGuards(1000, 100)}

	changed, err := gate.Evaluate(Exposure{Position: 1, FairPrice: 500})
	if err != nil || changed {
		t.Fatalf("expected proceed without change, got err=%v changed=%v", err, changed)
	}

	changed, err = gate.Evaluate(Exposure{Position: 3, FairPrice: 500})
	if !errors.Is(err, ErrNotionalExceed) || !changed || !gate.Suspended() {
		t.Fatalf("expected suspension, got err=%v changed=%v", err, changed)
	}

	changed, err = gate.Evaluate(Exposure{Position: 3, FairPrice: 500})
	if err == nil || changed {
		t.Fatalf("expected still suspended without change")
	}

	changed, err = gate.Evaluate(Exposure{Position: 1, FairPrice: 500})
	if err != nil || !changed || gate.Suspended() {
		t.Fatalf("expected automatic recovery, got err=%v changed=%v", err, changed)
	}
	if gate.Suspensions() != 1 {
		t.Fatalf("expected 1 suspension, got %d", gate.Suspensions())
	}
}
