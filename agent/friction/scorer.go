// Package friction derives named escalation signals and an urgency tier from turn state.
package friction

import (
	"strings"

	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

type Signal string

const (
	SignalNegativeSentiment   Signal = "negative_sentiment"
	SignalFrustrationKeywords Signal = "frustration_keywords"
	SignalRepeatedQuestions   Signal = "repeated_questions"
	SignalLowConfidence       Signal = "low_confidence_retrieval"
	SignalOracleEscalation    Signal = "oracle_recommended_escalation"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

const (
	DefaultEscalationThreshold = -0.1
	LowConfidenceThreshold     = 0.3
	repeatWindow               = 3
)

var DefaultFrustrationKeywords = []string{
	"frustrated", "angry", "terrible", "awful", "useless",
	"worst", "horrible", "disappointed", "annoyed", "upset",
}

// Input is everything the scorer looks at. RetrievalScore is nil when no retrieval ran this turn.
type Input struct {
	Sentiment           float64
	EscalationThreshold float64
	Utterance           string
	Keywords            []string
	RecentIntents       []string
	RetrievalScore      *float64
	OracleEscalate      bool
}

type Assessment struct {
	Sentiment float64
	Signals   []Signal
	Urgency   Urgency
}

func (a Assessment) Has(s Signal) bool {
	for _, v := range a.Signals {
		if v == s {
			return true
		}
	}
	return false
}

func (a Assessment) SignalNames() []string {
	out := make([]string, len(a.Signals))
	for i, s := range a.Signals {
		out[i] = string(s)
	}
	return out
}

// Score is pure and deterministic. Signals are returned in a fixed order.
func Score(in Input) Assessment {
	sentiment := statex.ClampSentiment(in.Sentiment)
	keywords := in.Keywords
	if keywords == nil {
		keywords = DefaultFrustrationKeywords
	}

	signals := make([]Signal, 0, 5)
	if sentiment < in.EscalationThreshold {
		signals = append(signals, SignalNegativeSentiment)
	}
	if containsKeyword(in.Utterance, keywords) {
		signals = append(signals, SignalFrustrationKeywords)
	}
	if repeated(in.RecentIntents) {
		signals = append(signals, SignalRepeatedQuestions)
	}
	if in.RetrievalScore != nil && *in.RetrievalScore < LowConfidenceThreshold {
		signals = append(signals, SignalLowConfidence)
	}
	if in.OracleEscalate {
		signals = append(signals, SignalOracleEscalation)
	}

	return Assessment{
		Sentiment: sentiment,
		Signals:   signals,
		Urgency:   UrgencyFor(sentiment, len(signals)),
	}
}

func UrgencyFor(sentiment float64, signalCount int) Urgency {
	switch {
	case sentiment < -0.5 || signalCount >= 4:
		return UrgencyHigh
	case sentiment < -0.2 || signalCount >= 2:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

func containsKeyword(utterance string, keywords []string) bool {
	text := strings.ToLower(utterance)
	if text == "" {
		return false
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// repeated reports whether the last three intents are the same substantive intent.
func repeated(intents []string) bool {
	if len(intents) < repeatWindow {
		return false
	}
	tail := intents[len(intents)-repeatWindow:]
	first := tail[0]
	if first == "" || first == "general_chat" {
		return false
	}
	for _, it := range tail[1:] {
		if it != first {
			return false
		}
	}
	return true
}
