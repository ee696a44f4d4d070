package orchestratornode

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/friction"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/tool"
)

var testNow = time.Date(2026, 4, 20, 15, 0, 0, 0, time.UTC)

type agentOracle struct {
	replies map[contractx.AgentType]string
	err     error
	calls   []contractx.AgentType
}

func (f *agentOracle) Complete(ctx context.Context, req contractx.OracleRequest) (string, error) {
	f.calls = append(f.calls, req.Agent)
	if f.err != nil {
		return "", f.err
	}
	reply, ok := f.replies[req.Agent]
	if !ok {
		return "", errors.New("no reply for " + string(req.Agent))
	}
	return reply, nil
}

func newDeps(t *testing.T, oracle contractx.Oracle) (*Deps, *tool.LocalCatalog) {
	t.Helper()

	catalog, err := tool.NewLocalCatalog()
	if err != nil {
		t.Fatalf("NewLocalCatalog() error = %v", err)
	}
	return &Deps{
		Oracle:              oracle,
		Prompts:             promptx.LoadPromptSet(),
		Catalog:             catalog,
		Execute:             tool.NewExecutor(catalog),
		HistoryLimit:        statex.DefaultHistoryLimit,
		EscalationThreshold: friction.DefaultEscalationThreshold,
	}, catalog
}

func newState(text, userID string) *GraphState {
	sess := statex.NewSession("s1", userID, testNow)
	sess.AppendMessage(statex.Message{Content: text, Sender: statex.SenderUser, Timestamp: testNow}, 0)
	return &GraphState{
		SessionID: "s1",
		UserID:    userID,
		Text:      text,
		Now:       testNow,
		Session:   sess,
		Urgency:   friction.UrgencyLow,
	}
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	now := func() time.Time { return testNow }
	if _, err := ValidateRequest(GraphInput{SessionID: " ", Text: "hi"}, now); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("err = %v, want ErrInvalidSession", err)
	}
	if _, err := ValidateRequest(GraphInput{SessionID: "s", Text: "\n"}, now); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("err = %v, want ErrInvalidMessage", err)
	}
	in, err := ValidateRequest(GraphInput{SessionID: " s ", UserID: " u ", Text: " hi "}, now)
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	if in.SessionID != "s" || in.UserID != "u" || in.Text != "hi" || !in.Now.Equal(testNow) {
		t.Fatalf("state = %#v", in)
	}
}

func TestParseIntent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{raw: `{"intent":"pricing","confidence":0.7}`, want: contractx.IntentPricing, ok: true},
		{raw: "```json\n{\"intent\": \"Refund_Request\"}\n```", want: contractx.IntentRefundRequest, ok: true},
		{raw: `"order_tracking"`, want: contractx.IntentOrderTracking, ok: true},
		{raw: `The intent is cart_management.`, want: contractx.IntentCartManagement, ok: true},
		{raw: `not product_inquiry, it's a refund_request`, ok: false},
		{raw: `Probably pricing, maybe purchase.`, ok: false},
		{raw: `{"intent":"teleport"}`, ok: false},
		{raw: ``, ok: false},
	}

	for _, tt := range tests {
		got, ok := parseIntent(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseIntent(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestClassifyIntentFallsBackToGeneralChat(t *testing.T) {
	t.Parallel()

	oracle := &agentOracle{err: errors.New("boom")}
	d, _ := newDeps(t, oracle)
	in := newState("hello", "")

	if _, err := ClassifyIntent(context.Background(), in, d); err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}
	if in.Session.Intent != contractx.IntentGeneralChat {
		t.Fatalf("Intent = %q", in.Session.Intent)
	}
	if len(in.Session.RecentIntents) != 1 {
		t.Fatalf("RecentIntents = %v", in.Session.RecentIntents)
	}
}

func TestRouteIntake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		intent string
		active statex.DialogKind
		want   IntakeRoute
		dialog statex.DialogKind
	}{
		{name: "handoff wins over interview", intent: contractx.IntentHumanHandoff, active: statex.DialogRefund, want: IntakeHandoff, dialog: statex.DialogRefund},
		{name: "active refund keeps going", intent: contractx.IntentConsultation, active: statex.DialogRefund, want: IntakeRefund, dialog: statex.DialogRefund},
		{name: "active consultation keeps going", intent: contractx.IntentPricing, active: statex.DialogConsultation, want: IntakeConsult, dialog: statex.DialogConsultation},
		{name: "refund request starts interview", intent: contractx.IntentRefundRequest, want: IntakeRefund, dialog: statex.DialogRefund},
		{name: "consultation starts interview", intent: contractx.IntentConsultation, want: IntakeConsult, dialog: statex.DialogConsultation},
		{name: "everything else retrieves", intent: contractx.IntentProductInquiry, want: IntakeRetrieve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newState("x", "")
			in.Session.Intent = tt.intent
			if tt.active != statex.DialogNone {
				in.Session.StartDialog(tt.active, testNow)
			}
			if got := routeIntake(in); got != tt.want {
				t.Fatalf("routeIntake() = %s, want %s", got, tt.want)
			}
			if in.Session.Dialog.Kind != tt.dialog {
				t.Fatalf("dialog = %q, want %q", in.Session.Dialog.Kind, tt.dialog)
			}
		})
	}
}

func TestSummarizeKeepsPreviousOnFailure(t *testing.T) {
	t.Parallel()

	d, _ := newDeps(t, &agentOracle{err: contractx.ErrOracleUnavailable})
	in := newState("one", "")
	in.Session.AppendMessage(statex.Message{Content: "two", Sender: statex.SenderAssistant}, 0)
	in.Session.AppendMessage(statex.Message{Content: "three", Sender: statex.SenderUser}, 0)
	in.Session.Summary = "Earlier summary."

	if _, err := Summarize(context.Background(), in, d); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if in.Session.Summary != "Earlier summary." {
		t.Fatalf("Summary = %q", in.Session.Summary)
	}
	if !errors.Is(in.OracleErr, contractx.ErrOracleUnavailable) {
		t.Fatalf("OracleErr = %v", in.OracleErr)
	}
}

func TestSummarizeTruncatesLongSummary(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("watch ", 200)
	d, _ := newDeps(t, &agentOracle{replies: map[contractx.AgentType]string{contractx.AgentTypeSummary: long}})
	in := newState("one", "")
	in.Session.AppendMessage(statex.Message{Content: "two", Sender: statex.SenderAssistant}, 0)
	in.Session.AppendMessage(statex.Message{Content: "three", Sender: statex.SenderUser}, 0)

	if _, err := Summarize(context.Background(), in, d); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if n := len([]rune(in.Session.Summary)); n > summaryMaxChars {
		t.Fatalf("summary length = %d", n)
	}
	if !strings.HasSuffix(in.Session.Summary, "...") {
		t.Fatalf("summary = %q, want ellipsis", in.Session.Summary)
	}
}

func TestRetrieveSkipsNonProductIntents(t *testing.T) {
	t.Parallel()

	oracle := &agentOracle{}
	d, _ := newDeps(t, oracle)
	in := newState("where is my order", "")
	in.Session.Intent = contractx.IntentOrderTracking

	if _, err := Retrieve(context.Background(), in, d); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if in.RetrievalAttempted || len(oracle.calls) != 0 {
		t.Fatalf("retrieval ran: attempted=%v calls=%v", in.RetrievalAttempted, oracle.calls)
	}
}

func TestRetrieveFallsBackToTextSearch(t *testing.T) {
	t.Parallel()

	oracle := &agentOracle{replies: map[contractx.AgentType]string{
		contractx.AgentTypeKnowledge: `{"brand":"Omega","model":"","min_price":0,"max_price":0,"features":[],"intent":"luxury","query":"omega"}`,
	}}
	d, _ := newDeps(t, oracle)
	in := newState("do you have a casio under $200", "")
	in.Session.Intent = contractx.IntentProductInquiry

	if _, err := Retrieve(context.Background(), in, d); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(in.Session.RetrievedProducts) == 0 {
		t.Fatal("expected text search fallback to find products")
	}
	if in.Session.RetrievalScore != retrievalHitScore {
		t.Fatalf("RetrievalScore = %v", in.Session.RetrievalScore)
	}
	if !strings.Contains(in.Grounded, "Here are some watches that match") {
		t.Fatalf("Grounded = %q", in.Grounded)
	}
}

func TestScoreSentimentNumericFallback(t *testing.T) {
	t.Parallel()

	d, _ := newDeps(t, &agentOracle{replies: map[contractx.AgentType]string{
		contractx.AgentTypeSentiment: "Score: -0.45 (the customer sounds unhappy)",
	}})
	in := newState("this is not what I expected", "")

	if _, err := ScoreSentiment(context.Background(), in, d); err != nil {
		t.Fatalf("ScoreSentiment() error = %v", err)
	}
	if in.Session.SentimentScore != -0.45 {
		t.Fatalf("SentimentScore = %v", in.Session.SentimentScore)
	}
	if in.Urgency != friction.UrgencyMedium {
		t.Fatalf("Urgency = %s, want medium", in.Urgency)
	}
	if len(in.Signals) != 1 || in.Signals[0] != string(friction.SignalNegativeSentiment) {
		t.Fatalf("Signals = %v", in.Signals)
	}
}

func decisionDeps(t *testing.T, reply string) (*Deps, *tool.LocalCatalog) {
	t.Helper()
	return newDeps(t, &agentOracle{replies: map[contractx.AgentType]string{contractx.AgentTypeDecision: reply}})
}

func TestDecideActionRequiresLogin(t *testing.T) {
	t.Parallel()

	d, catalog := decisionDeps(t, `{"action":"add_to_cart","args":{"watch_id":"w-casio-gshock"},"response_text":"Added!"}`)
	in := newState("add the g-shock to my cart", "")

	if _, err := DecideAction(context.Background(), in, d); err != nil {
		t.Fatalf("DecideAction() error = %v", err)
	}
	if in.Response != "Please log in so I can add that to your cart." {
		t.Fatalf("Response = %q", in.Response)
	}
	if catalog.CartSize("") != 0 {
		t.Fatal("cart changed without login")
	}
}

func TestDecideActionTargetsSingleShownProduct(t *testing.T) {
	t.Parallel()

	d, catalog := decisionDeps(t, `{"action":"add_to_cart","args":{"quantity":2}}`)
	in := newState("add it to my cart", "u1")
	in.Session.RetrievedProducts = []statex.Product{{ID: "w-casio-gshock", Name: "Casio G-Shock", Price: 150}}

	if _, err := DecideAction(context.Background(), in, d); err != nil {
		t.Fatalf("DecideAction() error = %v", err)
	}
	if catalog.CartSize("u1") != 2 {
		t.Fatalf("CartSize = %d, want 2", catalog.CartSize("u1"))
	}
	if !strings.HasPrefix(in.Response, "Added 2 x") {
		t.Fatalf("Response = %q", in.Response)
	}
	if in.Decision != DecisionRespond {
		t.Fatalf("Decision = %s", in.Decision)
	}
}

func TestDecideActionListsOrders(t *testing.T) {
	t.Parallel()

	d, _ := decisionDeps(t, `{"action":"get_orders","args":{},"response_text":"Let me check."}`)
	in := newState("where are my orders", "u1")

	if _, err := DecideAction(context.Background(), in, d); err != nil {
		t.Fatalf("DecideAction() error = %v", err)
	}
	if in.Response != "You don't have any orders yet." {
		t.Fatalf("Response = %q", in.Response)
	}
}

func TestDecideActionReportsCatalogRefusal(t *testing.T) {
	t.Parallel()

	d, _ := decisionDeps(t, `{"action":"create_order","args":{}}`)
	in := newState("place my order", "u1")

	if _, err := DecideAction(context.Background(), in, d); err != nil {
		t.Fatalf("DecideAction() error = %v", err)
	}
	if in.Response != "I couldn't place your order: your cart is empty" {
		t.Fatalf("Response = %q", in.Response)
	}
}

func TestDecideActionStartsConsultationOnce(t *testing.T) {
	t.Parallel()

	d, _ := decisionDeps(t, `{"action":"request_consultation","args":{}}`)
	in := newState("I don't know what to buy", "")

	if _, err := DecideAction(context.Background(), in, d); err != nil {
		t.Fatalf("DecideAction() error = %v", err)
	}
	if in.Decision != DecisionConsult || !in.Session.ConsultationActive() {
		t.Fatalf("Decision = %s, dialog = %#v", in.Decision, in.Session.Dialog)
	}

	again := newState("I don't know what to buy", "")
	again.ConsultRan = true
	again.Response = "What style do you like?"
	if _, err := DecideAction(context.Background(), again, d); err != nil {
		t.Fatalf("DecideAction() error = %v", err)
	}
	if again.Decision != DecisionRespond || again.Response != "What style do you like?" {
		t.Fatalf("Decision = %s, Response = %q", again.Decision, again.Response)
	}
}

func TestDecideActionMediumUrgencyOffersHuman(t *testing.T) {
	t.Parallel()

	d, _ := decisionDeps(t, `{"action":"direct_response","response_text":"Sorry about that."}`)
	in := newState("this is annoying", "")
	in.Urgency = friction.UrgencyMedium

	if _, err := DecideAction(context.Background(), in, d); err != nil {
		t.Fatalf("DecideAction() error = %v", err)
	}
	if in.Decision != DecisionRespondWithOffer || !strings.HasSuffix(in.Response, OfferMessage) {
		t.Fatalf("Decision = %s, Response = %q", in.Decision, in.Response)
	}
}

func TestDecideActionRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	d, _ := decisionDeps(t, `{"action":"teleport","response_text":"Whoosh"}`)
	in := newState("beam me up", "")

	if _, err := DecideAction(context.Background(), in, d); err != nil {
		t.Fatalf("DecideAction() error = %v", err)
	}
	if in.Response != FallbackMessage {
		t.Fatalf("Response = %q", in.Response)
	}
}

func TestDecideActionEscalatesOnHighUrgency(t *testing.T) {
	t.Parallel()

	oracle := &agentOracle{}
	d, _ := newDeps(t, oracle)
	in := newState("terrible", "")
	in.Urgency = friction.UrgencyHigh
	in.Signals = []string{"negative_sentiment"}

	if _, err := DecideAction(context.Background(), in, d); err != nil {
		t.Fatalf("DecideAction() error = %v", err)
	}
	if in.Decision != DecisionEscalate || len(oracle.calls) != 0 {
		t.Fatalf("Decision = %s, calls = %v", in.Decision, oracle.calls)
	}
}

func TestBuildHandoffWithoutNote(t *testing.T) {
	t.Parallel()

	d, _ := newDeps(t, &agentOracle{err: errors.New("down")})
	in := newState("I need help now", "u1")
	in.Session.StartDialog(statex.DialogRefund, testNow)

	if _, err := BuildHandoff(context.Background(), in, d); err != nil {
		t.Fatalf("BuildHandoff() error = %v", err)
	}
	pkg, ok := in.Session.Metadata[HandoffPackageKey].(HandoffPackage)
	if !ok {
		t.Fatalf("handoff package = %#v", in.Session.Metadata[HandoffPackageKey])
	}
	if pkg.IssueSummary != "I need help now" || pkg.TicketID == "" || pkg.Urgency != friction.UrgencyLow {
		t.Fatalf("package = %#v", pkg)
	}
	if in.Session.Status != statex.StatusEscalated || in.Session.Dialog.Active() {
		t.Fatalf("session status = %s, dialog = %#v", in.Session.Status, in.Session.Dialog)
	}
	if in.Response != HandoffMessage || !in.Escalated {
		t.Fatalf("Response = %q, Escalated = %v", in.Response, in.Escalated)
	}
}

func TestFinalizeReply(t *testing.T) {
	t.Parallel()

	in := newState("hi", "")
	in.NoteOracleErr(contractx.ErrOracleRateLimited)
	in.NoteOracleErr(contractx.ErrOracleUnavailable)
	in.Session.StartDialog(statex.DialogConsultation, testNow)
	in.Session.RetrievedProducts = []statex.Product{{ID: "w1"}}

	if _, err := FinalizeReply(in, 0); err != nil {
		t.Fatalf("FinalizeReply() error = %v", err)
	}
	if in.Response != RateLimitMessage {
		t.Fatalf("Response = %q", in.Response)
	}
	if len(in.Session.RetrievedProducts) != 0 {
		t.Fatal("products kept during an active interview")
	}
	last := in.Session.Messages[len(in.Session.Messages)-1]
	if last.Sender != statex.SenderAssistant || last.Metadata["agent_type"] != string(contractx.AgentTypeOrchestrator) {
		t.Fatalf("last message = %#v", last)
	}
	if !in.Finalized {
		t.Fatal("Finalized not set")
	}
}

func TestLoadOrCreateAndSaveState(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	ctx := context.Background()
	in := &GraphState{SessionID: "s9", UserID: "u9", Text: "hello", Now: testNow}

	if _, err := LoadOrCreateState(ctx, in, store, 4); err != nil {
		t.Fatalf("LoadOrCreateState() error = %v", err)
	}
	if in.Session.UserID != "u9" || len(in.Session.Messages) != 1 {
		t.Fatalf("session = %#v", in.Session)
	}

	in.Session.SentimentScore = 3
	if _, err := ValidateAndSaveState(ctx, in, store, 4); err != nil {
		t.Fatalf("ValidateAndSaveState() error = %v", err)
	}
	saved, err := store.Load(ctx, "s9")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if saved.SentimentScore != 1 {
		t.Fatalf("SentimentScore = %v, want repaired to 1", saved.SentimentScore)
	}

	next := &GraphState{SessionID: "s9", Text: "again", Now: testNow}
	if _, err := LoadOrCreateState(ctx, next, store, 4); err != nil {
		t.Fatalf("LoadOrCreateState() error = %v", err)
	}
	if next.UserID != "u9" || len(next.Session.Messages) != 2 {
		t.Fatalf("UserID = %q, messages = %d", next.UserID, len(next.Session.Messages))
	}
}
