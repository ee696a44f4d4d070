package state

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func TestPreferencesMergeIsAdditive(t *testing.T) {
	t.Parallel()

	acc := Preferences{}
	acc = acc.Merge(Preferences{Style: "Dress"})
	acc = acc.Merge(Preferences{})
	acc = acc.Merge(Preferences{Style: "   "})

	if acc.Style != "Dress" {
		t.Fatalf("Style = %q, want Dress", acc.Style)
	}

	again := acc.Merge(Preferences{})
	if again.Style != acc.Style || again.Budget != acc.Budget || len(again.Features) != len(acc.Features) {
		t.Fatalf("merge with empty update changed slots: %#v -> %#v", acc, again)
	}
}

func TestPreferencesMergeFeaturesDeduplicates(t *testing.T) {
	t.Parallel()

	got := Preferences{Features: []string{"sapphire"}}.Merge(Preferences{Features: []string{"Sapphire", "chronograph", ""}})
	if len(got.Features) != 2 {
		t.Fatalf("Features = %#v, want 2 unique entries", got.Features)
	}
	if got.Features[0] != "sapphire" || got.Features[1] != "chronograph" {
		t.Fatalf("Features = %#v", got.Features)
	}
}

func TestRefundInfoMergeKeepsFilledSlots(t *testing.T) {
	t.Parallel()

	acc := RefundInfo{OrderID: "A-1", Reason: "changed_mind", HasPackaging: boolPtr(true)}
	acc = acc.Merge(RefundInfo{})
	acc = acc.Merge(RefundInfo{Condition: "Like New", OrderID: ""})

	if acc.OrderID != "A-1" {
		t.Fatalf("OrderID = %q, want A-1", acc.OrderID)
	}
	if acc.Condition != "like_new" {
		t.Fatalf("Condition = %q, want like_new", acc.Condition)
	}
	if acc.HasPackaging == nil || !*acc.HasPackaging {
		t.Fatalf("HasPackaging lost: %#v", acc.HasPackaging)
	}

	acc = acc.Merge(RefundInfo{HasPackaging: boolPtr(false), DaysSincePurchase: intPtr(0)})
	if acc.HasPackaging == nil || *acc.HasPackaging {
		t.Fatal("explicit false must overwrite HasPackaging")
	}
	if acc.DaysSincePurchase == nil || *acc.DaysSincePurchase != 0 {
		t.Fatal("explicit zero must set DaysSincePurchase")
	}
}

func TestEntitiesMergeLastWriteWins(t *testing.T) {
	t.Parallel()

	e := Entities{Brand: "Rolex", Category: "dive"}
	e = e.Merge(Entities{Brand: "Omega", Category: ""})
	if e.Brand != "Omega" || e.Category != "dive" {
		t.Fatalf("Entities = %#v", e)
	}
}

func TestStartDialogIsExclusive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession("s1", "", now)
	s.RetrievedProducts = []Product{{ID: "p1"}}

	s.StartDialog(DialogConsultation, now)
	if !s.ConsultationActive() || s.RefundActive() {
		t.Fatalf("after consultation start: consult=%v refund=%v", s.ConsultationActive(), s.RefundActive())
	}
	if len(s.RetrievedProducts) != 0 {
		t.Fatal("starting a dialog must clear retrieved products")
	}

	s.RefundInfo = RefundInfo{OrderID: "stale"}
	s.StartDialog(DialogRefund, now)
	if s.ConsultationActive() || !s.RefundActive() {
		t.Fatalf("after refund start: consult=%v refund=%v", s.ConsultationActive(), s.RefundActive())
	}
	if s.RefundInfo.OrderID != "" {
		t.Fatal("a new refund dialog starts with empty slots")
	}

	s.EndDialog()
	if s.ConsultationActive() || s.RefundActive() {
		t.Fatal("EndDialog must deactivate both")
	}
}

func TestAppendMessageBoundsHistory(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", "", time.Now())
	for i := 0; i < 25; i++ {
		s.AppendMessage(Message{Content: fmt.Sprintf("m%d", i), Sender: SenderUser}, 20)
	}
	if len(s.Messages) != 20 {
		t.Fatalf("len(Messages) = %d, want 20", len(s.Messages))
	}
	if s.Messages[0].Content != "m5" || s.Messages[19].Content != "m24" {
		t.Fatalf("unexpected window: first=%q last=%q", s.Messages[0].Content, s.Messages[19].Content)
	}
}

func TestRecordIntentWindow(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", "", time.Now())
	for i := 0; i < 7; i++ {
		s.RecordIntent(fmt.Sprintf("i%d", i))
	}
	if len(s.RecentIntents) != 5 || s.RecentIntents[0] != "i2" || s.Intent != "i6" {
		t.Fatalf("RecentIntents = %#v Intent = %q", s.RecentIntents, s.Intent)
	}
}

func TestClampSentiment(t *testing.T) {
	t.Parallel()

	cases := map[float64]float64{-5: -1, 5: 1, 0.25: 0.25, -1: -1}
	for in, want := range cases {
		if got := ClampSentiment(in); got != want {
			t.Fatalf("ClampSentiment(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestValidateAndRepair(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", "", time.Now())
	s.Dialog = ActiveDialog{Kind: DialogConsultation}
	s.RetrievedProducts = []Product{{ID: "p1"}}
	s.Status = "weird"

	if err := s.Validate(20); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("Validate() error = %v, want ErrInvalidStatus", err)
	}
	s.Repair(20)
	if err := s.Validate(20); err != nil {
		t.Fatalf("Validate() after Repair error = %v", err)
	}
	if len(s.RetrievedProducts) != 0 {
		t.Fatal("Repair must drop products during an active dialog")
	}
}
