package friction

import (
	"reflect"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestUrgencyBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		sentiment float64
		signals   int
		want      Urgency
	}{
		{"strong negative", -0.6, 0, UrgencyHigh},
		{"just above high cut", -0.5, 0, UrgencyMedium},
		{"four signals", 0.9, 4, UrgencyHigh},
		{"mild negative one signal", -0.3, 1, UrgencyMedium},
		{"just above medium cut", -0.2, 1, UrgencyLow},
		{"two signals", 0.5, 2, UrgencyMedium},
		{"three signals", 0.5, 3, UrgencyMedium},
		{"positive no signals", 0.5, 0, UrgencyLow},
		{"neutral one signal", 0, 1, UrgencyLow},
	}
	for _, tc := range cases {
		if got := UrgencyFor(tc.sentiment, tc.signals); got != tc.want {
			t.Fatalf("%s: UrgencyFor(%v, %d) = %s, want %s", tc.name, tc.sentiment, tc.signals, got, tc.want)
		}
	}
}

func TestScoreClampsSentiment(t *testing.T) {
	t.Parallel()

	got := Score(Input{Sentiment: -5.0, EscalationThreshold: DefaultEscalationThreshold})
	if got.Sentiment != -1.0 {
		t.Fatalf("Sentiment = %v, want -1.0", got.Sentiment)
	}
	if got.Urgency != UrgencyHigh {
		t.Fatalf("Urgency = %s, want high", got.Urgency)
	}
	if !got.Has(SignalNegativeSentiment) {
		t.Fatalf("Signals = %v, want negative_sentiment", got.Signals)
	}
}

func TestScoreUrgencyExamples(t *testing.T) {
	t.Parallel()

	high := Score(Input{Sentiment: -0.6, EscalationThreshold: DefaultEscalationThreshold})
	if high.Urgency != UrgencyHigh {
		t.Fatalf("-0.6: Urgency = %s, want high", high.Urgency)
	}

	medium := Score(Input{Sentiment: -0.3, EscalationThreshold: -0.5, OracleEscalate: true})
	if len(medium.Signals) != 1 || medium.Urgency != UrgencyMedium {
		t.Fatalf("-0.3 + 1 signal: %+v, want medium with one signal", medium)
	}

	low := Score(Input{Sentiment: 0.5, EscalationThreshold: DefaultEscalationThreshold})
	if len(low.Signals) != 0 || low.Urgency != UrgencyLow {
		t.Fatalf("0.5: %+v, want low with no signals", low)
	}
}

func TestScoreSignalOrder(t *testing.T) {
	t.Parallel()

	got := Score(Input{
		Sentiment:           -0.4,
		EscalationThreshold: DefaultEscalationThreshold,
		Utterance:           "This is USELESS, I asked three times",
		RecentIntents:       []string{"pricing", "order_tracking", "order_tracking", "order_tracking"},
		RetrievalScore:      ptr(0.1),
		OracleEscalate:      true,
	})
	want := []Signal{
		SignalNegativeSentiment,
		SignalFrustrationKeywords,
		SignalRepeatedQuestions,
		SignalLowConfidence,
		SignalOracleEscalation,
	}
	if !reflect.DeepEqual(got.Signals, want) {
		t.Fatalf("Signals = %v, want %v", got.Signals, want)
	}
	if got.Urgency != UrgencyHigh {
		t.Fatalf("Urgency = %s, want high", got.Urgency)
	}
}

func TestScoreRepeatedIgnoresChitChat(t *testing.T) {
	t.Parallel()

	got := Score(Input{RecentIntents: []string{"general_chat", "general_chat", "general_chat"}})
	if got.Has(SignalRepeatedQuestions) {
		t.Fatal("general chat must not count as repeated questions")
	}
	got = Score(Input{RecentIntents: []string{"pricing", "pricing"}})
	if got.Has(SignalRepeatedQuestions) {
		t.Fatal("two repeats are below the window")
	}
}

func TestScoreRetrievalConfidence(t *testing.T) {
	t.Parallel()

	if Score(Input{}).Has(SignalLowConfidence) {
		t.Fatal("no retrieval attempted must not flag low confidence")
	}
	if Score(Input{RetrievalScore: ptr(0.3)}).Has(SignalLowConfidence) {
		t.Fatal("0.3 is not below the cut")
	}
	if !Score(Input{RetrievalScore: ptr(0.29)}).Has(SignalLowConfidence) {
		t.Fatal("0.29 must flag low confidence")
	}
}
