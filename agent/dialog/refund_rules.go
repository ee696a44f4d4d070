package dialog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
	"gopkg.in/yaml.v3"
)

//go:embed refund_policy.yaml
var defaultRefundPolicy []byte

type RefundRule struct {
	Violation Violation `yaml:"violation"`
	When      string    `yaml:"when"`

	program *vm.Program
}

// RefundPolicyTable is the declarative store policy the refund interview enforces.
type RefundPolicyTable struct {
	ReturnWindowDays        int          `yaml:"return_window_days"`
	RefundWindowDays        int          `yaml:"refund_window_days"`
	RestockingFeePercent    int          `yaml:"restocking_fee_percent"`
	ValidReasons            []string     `yaml:"valid_reasons"`
	FaultReasons            []string     `yaml:"fault_reasons"`
	RestockingReasons       []string     `yaml:"restocking_reasons"`
	NonReturnableConditions []string     `yaml:"non_returnable_conditions"`
	Rules                   []RefundRule `yaml:"rules"`
}

// DefaultRefundPolicy returns the embedded policy table, compiled.
func DefaultRefundPolicy() (*RefundPolicyTable, error) {
	return ParseRefundPolicy(defaultRefundPolicy)
}

// LoadRefundPolicy reads a policy table from path, or the embedded default when path is empty.
func LoadRefundPolicy(path string) (*RefundPolicyTable, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRefundPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read refund policy: %w", err)
	}
	return ParseRefundPolicy(data)
}

func ParseRefundPolicy(data []byte) (*RefundPolicyTable, error) {
	var table RefundPolicyTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse refund policy: %w", err)
	}
	if len(table.Rules) == 0 {
		return nil, fmt.Errorf("refund policy has no rules")
	}
	sample := table.env(statex.RefundInfo{})
	for i := range table.Rules {
		r := &table.Rules[i]
		switch r.Violation {
		case ViolationOutsideWindow, ViolationNonReturnable, ViolationInvalidReason, ViolationInsufficientInfo:
		default:
			return nil, fmt.Errorf("refund rule %d: unknown violation %q", i, r.Violation)
		}
		program, err := expr.Compile(r.When, expr.Env(sample), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile refund rule %s: %w", r.Violation, err)
		}
		r.program = program
	}
	return &table, nil
}

// Evaluate returns the first violated rule for the known slots, or ViolationNone.
func (t *RefundPolicyTable) Evaluate(info statex.RefundInfo) (Violation, error) {
	env := t.env(info)
	for _, r := range t.Rules {
		out, err := expr.Run(r.program, env)
		if err != nil {
			return ViolationNone, fmt.Errorf("evaluate refund rule %s: %w", r.Violation, err)
		}
		if hit, ok := out.(bool); ok && hit {
			return r.Violation, nil
		}
	}
	return ViolationNone, nil
}

// RestockingFee reports the fee percentage applying to reason, zero when none.
func (t *RefundPolicyTable) RestockingFee(reason string) int {
	if contains(t.RestockingReasons, reason) {
		return t.RestockingFeePercent
	}
	return 0
}

// Summary is a short human-readable rendering used in prompts.
func (t *RefundPolicyTable) Summary() string {
	return fmt.Sprintf(
		"- Change of mind or size/fit returns within %d days (%d%% restocking fee).\n"+
			"- Faulty, damaged, wrong or not-as-described items refundable within %d days.\n"+
			"- Reason codes: %s.\n"+
			"- Not returnable: %s.",
		t.ReturnWindowDays, t.RestockingFeePercent, t.RefundWindowDays,
		strings.Join(t.ValidReasons, ", "), strings.Join(t.NonReturnableConditions, ", "),
	)
}

func (t *RefundPolicyTable) env(info statex.RefundInfo) map[string]any {
	days := -1
	if info.DaysSincePurchase != nil {
		days = *info.DaysSincePurchase
	}
	isCustom := false
	if info.IsCustom != nil {
		isCustom = *info.IsCustom
	}
	return map[string]any{
		"reason":                    info.Reason,
		"condition":                 info.Condition,
		"days":                      days,
		"is_custom":                 isCustom,
		"valid_reasons":             t.ValidReasons,
		"fault_reasons":             t.FaultReasons,
		"restocking_reasons":        t.RestockingReasons,
		"non_returnable_conditions": t.NonReturnableConditions,
		"return_window_days":        t.ReturnWindowDays,
		"refund_window_days":        t.RefundWindowDays,
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
