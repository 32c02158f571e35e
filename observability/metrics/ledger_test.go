package metrics

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLedgerMetricsObserve(t *testing.T) {
	m := Ledger()
	if Ledger() != m {
		t.Fatalf("expected singleton registry")
	}

	before := testutil.ToFloat64(m.Snapshots().WithLabelValues("metrics-test"))
	m.ObserveSnapshot("metrics-test")
	if got := testutil.ToFloat64(m.Snapshots().WithLabelValues("metrics-test")); got != before+1 {
		t.Fatalf("expected snapshot counter %v, got %v", before+1, got)
	}

	m.SetPool("metrics-test", big.NewInt(42), big.NewInt(3))
	if got := testutil.ToFloat64(m.Pool().WithLabelValues("metrics-test")); got != 42 {
		t.Fatalf("expected pool 42, got %v", got)
	}

	m.ObserveRejection("", "")
	if got := testutil.ToFloat64(m.Rejections().WithLabelValues("unknown", "unknown")); got < 1 {
		t.Fatalf("expected unknown labels to be recorded, got %v", got)
	}

	var nilMetrics *LedgerMetrics
	nilMetrics.ObserveWithdrawal(big.NewInt(1))
}
