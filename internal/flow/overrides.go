package flow

import (
	"strings"

	"github.com/spec-kit/support-engine/internal/domain"
)

// OverrideRule forces a mood label when the raw prediction carries a known
// failure mode. Rules are data, applied in order after classification, so
// each can be audited and tested on its own.
type OverrideRule struct {
	Name  string
	When  domain.MoodLabel
	AnyOf []string
	Then  domain.MoodLabel
}

// DefaultOverrides encodes the asymmetric error costs the model is known to
// get wrong: a missed angry customer is worse than a false escalation, and
// a relaxed status check should not page anyone.
func DefaultOverrides() []OverrideRule {
	return []OverrideRule{
		{
			Name: "negated-positive",
			When: domain.MoodHappy,
			AnyOf: []string{
				"not happy", "unhappy", "disappointed", "delay", "waiting", "where is", "late",
			},
			Then: domain.MoodAngry,
		},
		{
			Name: "calm-urgent",
			When: domain.MoodUrgent,
			AnyOf: []string{
				"just checking", "curious", "wondering", "no rush", "take your time",
			},
			Then: domain.MoodNeutral,
		},
	}
}

// ApplyOverrides runs the rule table against the raw mood. The first rule
// whose mood matches and whose cue appears in the text wins; the returned
// rule name is empty when nothing fired.
func ApplyOverrides(mood domain.MoodLabel, text string, rules []OverrideRule) (domain.MoodLabel, string) {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		if rule.When != mood {
			continue
		}
		for _, cue := range rule.AnyOf {
			if strings.Contains(lower, cue) {
				return rule.Then, rule.Name
			}
		}
	}
	return mood, ""
}
