// The foreman decides which clients participate in a hunt.
//
// Rule evaluation is a pure function of a client snapshot and a rule
// set: no state, no I/O, safe to run concurrently and repeatedly
// against a changing fleet. Malformed rules and absent fields fail
// closed - the client simply does not match - and are never raised
// to the caller. Structural problems with a rule set are caught by
// Validate at hunt creation time instead.
package foreman

import (
	"regexp"

	errors "github.com/pkg/errors"
)

type MatchMode string

const (
	MATCH_ALL MatchMode = "MATCH_ALL"
	MATCH_ANY MatchMode = "MATCH_ANY"
)

type LabelMatchMode string

const (
	LABEL_MATCH_ALL          LabelMatchMode = "MATCH_ALL"
	LABEL_MATCH_ANY          LabelMatchMode = "MATCH_ANY"
	LABEL_DOES_NOT_MATCH_ALL LabelMatchMode = "DOES_NOT_MATCH_ALL"
	LABEL_DOES_NOT_MATCH_ANY LabelMatchMode = "DOES_NOT_MATCH_ANY"
)

type IntegerOperator string

const (
	INTEGER_EQUAL        IntegerOperator = "EQUAL"
	INTEGER_LESS_THAN    IntegerOperator = "LESS_THAN"
	INTEGER_GREATER_THAN IntegerOperator = "GREATER_THAN"
)

type OsRule struct {
	Windows bool `json:"windows,omitempty"`
	Linux   bool `json:"linux,omitempty"`
	Darwin  bool `json:"darwin,omitempty"`
}

type LabelRule struct {
	MatchMode LabelMatchMode `json:"match_mode"`
	Labels    []string       `json:"labels"`
}

type RegexRule struct {
	Field string `json:"field"`
	Regex string `json:"regex"`
}

type IntegerRule struct {
	Field    string          `json:"field"`
	Operator IntegerOperator `json:"operator"`
	Value    int64           `json:"value"`
}

// Exactly one member should be set.
type Rule struct {
	Os      *OsRule      `json:"os,omitempty"`
	Label   *LabelRule   `json:"label,omitempty"`
	Regex   *RegexRule   `json:"regex,omitempty"`
	Integer *IntegerRule `json:"integer,omitempty"`
}

type RuleSet struct {
	MatchMode MatchMode `json:"match_mode"`
	Rules     []*Rule   `json:"rules,omitempty"`
}

// The evaluator only needs a read-only view of the client.
type ClientSnapshot interface {
	GetFieldString(field string) (string, bool)
	GetFieldInt64(field string) (int64, bool)
	HasLabel(label string) bool
}

// Check a rule set at hunt creation time. Returns a synchronous
// error for structurally invalid rules so operators get immediate
// feedback, unlike evaluation which fails closed.
func (self *RuleSet) Validate() error {
	switch self.MatchMode {
	case MATCH_ALL, MATCH_ANY:
	default:
		return errors.Errorf("Invalid match mode %q", self.MatchMode)
	}

	for _, rule := range self.Rules {
		count := 0
		if rule.Os != nil {
			count++
		}
		if rule.Label != nil {
			count++
			switch rule.Label.MatchMode {
			case LABEL_MATCH_ALL, LABEL_MATCH_ANY,
				LABEL_DOES_NOT_MATCH_ALL, LABEL_DOES_NOT_MATCH_ANY:
			default:
				return errors.Errorf("Invalid label match mode %q",
					rule.Label.MatchMode)
			}
		}
		if rule.Regex != nil {
			count++
			_, err := regexp.Compile(rule.Regex.Regex)
			if err != nil {
				return errors.Wrapf(err, "Invalid regex %q",
					rule.Regex.Regex)
			}
		}
		if rule.Integer != nil {
			count++
			switch rule.Integer.Operator {
			case INTEGER_EQUAL, INTEGER_LESS_THAN, INTEGER_GREATER_THAN:
			default:
				return errors.Errorf("Invalid integer operator %q",
					rule.Integer.Operator)
			}
		}

		if count != 1 {
			return errors.New(
				"Each rule must set exactly one of os, label, regex, integer")
		}
	}

	return nil
}

// EvaluateRuleSet reports whether the client matches the rule
// set. An empty rule set matches every client.
func EvaluateRuleSet(rule_set *RuleSet, client ClientSnapshot) bool {
	if rule_set == nil || len(rule_set.Rules) == 0 {
		return true
	}

	for _, rule := range rule_set.Rules {
		matched := evaluateRule(rule, client)

		switch rule_set.MatchMode {
		case MATCH_ANY:
			if matched {
				return true
			}
		default:
			// MATCH_ALL
			if !matched {
				return false
			}
		}
	}

	return rule_set.MatchMode != MATCH_ANY
}

func evaluateRule(rule *Rule, client ClientSnapshot) bool {
	switch {
	case rule.Os != nil:
		return evaluateOsRule(rule.Os, client)

	case rule.Label != nil:
		return evaluateLabelRule(rule.Label, client)

	case rule.Regex != nil:
		return evaluateRegexRule(rule.Regex, client)

	case rule.Integer != nil:
		return evaluateIntegerRule(rule.Integer, client)
	}

	// A rule with no variant set matches nothing.
	return false
}

func evaluateOsRule(rule *OsRule, client ClientSnapshot) bool {
	os, pres := client.GetFieldString("os")
	if !pres {
		return false
	}

	switch os {
	case "windows":
		return rule.Windows
	case "linux":
		return rule.Linux
	case "darwin":
		return rule.Darwin
	}
	return false
}

func evaluateLabelRule(rule *LabelRule, client ClientSnapshot) bool {
	match_all := func() bool {
		for _, label := range rule.Labels {
			if !client.HasLabel(label) {
				return false
			}
		}
		return true
	}

	match_any := func() bool {
		for _, label := range rule.Labels {
			if client.HasLabel(label) {
				return true
			}
		}
		return false
	}

	switch rule.MatchMode {
	case LABEL_MATCH_ALL:
		return match_all()
	case LABEL_MATCH_ANY:
		return match_any()
	case LABEL_DOES_NOT_MATCH_ALL:
		return !match_all()
	case LABEL_DOES_NOT_MATCH_ANY:
		return !match_any()
	}
	return false
}

func evaluateRegexRule(rule *RegexRule, client ClientSnapshot) bool {
	value, pres := client.GetFieldString(rule.Field)
	if !pres {
		return false
	}

	re, err := regexp.Compile(rule.Regex)
	if err != nil {
		return false
	}

	return re.MatchString(value)
}

func evaluateIntegerRule(rule *IntegerRule, client ClientSnapshot) bool {
	value, pres := client.GetFieldInt64(rule.Field)
	if !pres {
		return false
	}

	switch rule.Operator {
	case INTEGER_EQUAL:
		return value == rule.Value
	case INTEGER_LESS_THAN:
		return value < rule.Value
	case INTEGER_GREATER_THAN:
		return value > rule.Value
	}
	return false
}
