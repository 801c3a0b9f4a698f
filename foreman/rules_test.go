package foreman_test

import (
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"

	"github.com/openfleet/huntmaster/clients"
	"github.com/openfleet/huntmaster/foreman"
)

func sampleClient() *clients.ClientInfo {
	return &clients.ClientInfo{
		ClientId: "C.1234",
		Hostname: "web-server-01",
		OS:       "linux",
		Labels:   []string{"prod", "web"},
		Fields: ordereddict.NewDict().
			Set("memory_gb", int64(32)),
	}
}

func osRule(windows, linux, darwin bool) *foreman.Rule {
	return &foreman.Rule{Os: &foreman.OsRule{
		Windows: windows, Linux: linux, Darwin: darwin}}
}

func labelRule(mode foreman.LabelMatchMode, labels ...string) *foreman.Rule {
	return &foreman.Rule{Label: &foreman.LabelRule{
		MatchMode: mode, Labels: labels}}
}

func TestEmptyRuleSetMatchesEverything(t *testing.T) {
	client := sampleClient()

	assert.True(t, foreman.EvaluateRuleSet(nil, client))
	assert.True(t, foreman.EvaluateRuleSet(
		&foreman.RuleSet{MatchMode: foreman.MATCH_ALL}, client))
	assert.True(t, foreman.EvaluateRuleSet(
		&foreman.RuleSet{MatchMode: foreman.MATCH_ANY}, client))
}

func TestMatchModeAlgebra(t *testing.T) {
	client := sampleClient()

	matching := osRule(false, true, false)
	failing := osRule(true, false, false)

	cases := []struct {
		mode     foreman.MatchMode
		rules    []*foreman.Rule
		expected bool
	}{
		{foreman.MATCH_ALL, []*foreman.Rule{matching, matching}, true},
		{foreman.MATCH_ALL, []*foreman.Rule{matching, failing}, false},
		{foreman.MATCH_ALL, []*foreman.Rule{failing, failing}, false},
		{foreman.MATCH_ANY, []*foreman.Rule{matching, failing}, true},
		{foreman.MATCH_ANY, []*foreman.Rule{failing, matching}, true},
		{foreman.MATCH_ANY, []*foreman.Rule{failing, failing}, false},
	}

	for idx, testcase := range cases {
		result := foreman.EvaluateRuleSet(&foreman.RuleSet{
			MatchMode: testcase.mode,
			Rules:     testcase.rules,
		}, client)
		assert.Equal(t, testcase.expected, result, "case %d", idx)
	}
}

// The negated label modes must be exact negations of their positive
// counterparts over the same label set.
func TestLabelModeNegations(t *testing.T) {
	client := sampleClient()

	label_sets := [][]string{
		{"prod"},
		{"prod", "web"},
		{"prod", "missing"},
		{"missing"},
		{"missing", "also_missing"},
	}

	eval := func(mode foreman.LabelMatchMode, labels []string) bool {
		return foreman.EvaluateRuleSet(&foreman.RuleSet{
			MatchMode: foreman.MATCH_ALL,
			Rules:     []*foreman.Rule{labelRule(mode, labels...)},
		}, client)
	}

	for _, labels := range label_sets {
		assert.Equal(t,
			!eval(foreman.LABEL_MATCH_ALL, labels),
			eval(foreman.LABEL_DOES_NOT_MATCH_ALL, labels),
			"labels %v", labels)

		assert.Equal(t,
			!eval(foreman.LABEL_MATCH_ANY, labels),
			eval(foreman.LABEL_DOES_NOT_MATCH_ANY, labels),
			"labels %v", labels)
	}
}

func TestRegexRules(t *testing.T) {
	client := sampleClient()

	match := func(field, regex string) bool {
		return foreman.EvaluateRuleSet(&foreman.RuleSet{
			MatchMode: foreman.MATCH_ALL,
			Rules: []*foreman.Rule{{Regex: &foreman.RegexRule{
				Field: field, Regex: regex}}},
		}, client)
	}

	assert.True(t, match("hostname", "^web-"))
	assert.False(t, match("hostname", "^db-"))

	// Absent fields fail closed, they do not error.
	assert.False(t, match("no_such_field", ".*"))

	// So do malformed regexes at evaluation time.
	assert.False(t, match("hostname", "[unclosed"))
}

func TestIntegerRules(t *testing.T) {
	client := sampleClient()

	match := func(op foreman.IntegerOperator, value int64) bool {
		return foreman.EvaluateRuleSet(&foreman.RuleSet{
			MatchMode: foreman.MATCH_ALL,
			Rules: []*foreman.Rule{{Integer: &foreman.IntegerRule{
				Field: "memory_gb", Operator: op, Value: value}}},
		}, client)
	}

	assert.True(t, match(foreman.INTEGER_EQUAL, 32))
	assert.False(t, match(foreman.INTEGER_EQUAL, 16))
	assert.True(t, match(foreman.INTEGER_LESS_THAN, 64))
	assert.False(t, match(foreman.INTEGER_LESS_THAN, 32))
	assert.True(t, match(foreman.INTEGER_GREATER_THAN, 16))
	assert.False(t, match(foreman.INTEGER_GREATER_THAN, 32))
}

func TestRuleSetValidation(t *testing.T) {
	// A bad regex is rejected at creation time.
	err := (&foreman.RuleSet{
		MatchMode: foreman.MATCH_ALL,
		Rules: []*foreman.Rule{{Regex: &foreman.RegexRule{
			Field: "hostname", Regex: "[unclosed"}}},
	}).Validate()
	assert.Error(t, err)

	// Unknown match modes are rejected.
	err = (&foreman.RuleSet{MatchMode: "MATCH_SOME"}).Validate()
	assert.Error(t, err)

	// A rule must set exactly one variant.
	err = (&foreman.RuleSet{
		MatchMode: foreman.MATCH_ALL,
		Rules:     []*foreman.Rule{{}},
	}).Validate()
	assert.Error(t, err)

	err = (&foreman.RuleSet{
		MatchMode: foreman.MATCH_ANY,
		Rules: []*foreman.Rule{{
			Os:    &foreman.OsRule{Linux: true},
			Label: &foreman.LabelRule{MatchMode: foreman.LABEL_MATCH_ANY},
		}},
	}).Validate()
	assert.Error(t, err)
}
