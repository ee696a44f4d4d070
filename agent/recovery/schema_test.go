package recovery

import (
	"errors"
	"testing"
)

type testDecision struct {
	Action       string         `json:"action" jsonschema:"enum=search,enum=escalate"`
	Args         map[string]any `json:"args,omitempty"`
	ResponseText string         `json:"response_text,omitempty"`
}

func TestDecodeValid(t *testing.T) {
	t.Parallel()

	v, err := NewSchemaValidator("test_decision", &testDecision{})
	if err != nil {
		t.Fatalf("NewSchemaValidator() error = %v", err)
	}

	got, err := DecodeValid[testDecision](`ok: {"action":"search","args":{"query":"dress"},"reasoning":"extra fields are fine"}`, v)
	if err != nil {
		t.Fatalf("DecodeValid() error = %v", err)
	}
	if got.Action != "search" || got.Args["query"] != "dress" {
		t.Fatalf("DecodeValid() = %#v", got)
	}
}

func TestDecodeValidRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	v := MustSchemaValidator("test_decision", &testDecision{})

	if _, err := DecodeValid[testDecision](`{"action":"launch_rocket"}`, v); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("DecodeValid() error = %v, want ErrSchemaMismatch", err)
	}
	if _, err := DecodeValid[testDecision](`{"response_text":"hi"}`, v); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("DecodeValid() missing action error = %v, want ErrSchemaMismatch", err)
	}
	if _, err := DecodeValid[testDecision](`no object here`, v); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("DecodeValid() error = %v, want ErrUnparseable", err)
	}
}
