package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	r := New()
	r.OracleCall("intent", "ok")
	r.OracleCall("intent", "ok")
	r.OracleCall("intent", "rate_limited")
	r.DialogOutcome("refund", "terminal_negative")
	r.ObserveNode("classify_intent")()

	if got := testutil.ToFloat64(r.oracleCalls.WithLabelValues("intent", "ok")); got != 2 {
		t.Fatalf("oracle ok calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.dialogs.WithLabelValues("refund", "terminal_negative")); got != 1 {
		t.Fatalf("dialog outcomes = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.nodeLatency); n != 1 {
		t.Fatalf("node latency series = %d, want 1", n)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	r.Turn("decision", "respond")
	r.OracleCall("intent", "ok")
	r.Escalation("high")
	r.Notice("qstash", "ok")
	r.ObserveNode("x")()
	if r.Registry() != nil {
		t.Fatal("nil recorder must not expose a registry")
	}
}
