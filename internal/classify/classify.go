// Package classify assigns a priority and category to free-text task content.
package classify

import (
	"strings"
	"unicode"

	"github.com/phrazzld/scry-tasks/internal/domain"
)

// DefaultCategory is used when no rule matches.
const DefaultCategory = "general"

// Result is the outcome of classifying a piece of content.
type Result struct {
	Priority domain.Priority
	Category string
}

// Classifier maps task content to a priority and category.
type Classifier interface {
	Classify(content string) Result
}

// Func adapts a function to the Classifier interface.
type Func func(content string) Result

// Classify calls f(content).
func (f Func) Classify(content string) Result {
	return f(content)
}

// Rule maps any of its keywords to a value. Keywords containing a space
// match as substrings; single words match whole tokens.
type Rule struct {
	Value    string
	Keywords []string
}

// Keyword classifies by the first matching rule. Rules are checked in order,
// so earlier rules win.
type Keyword struct {
	PriorityRules []Rule
	CategoryRules []Rule
}

// NewKeyword returns a Keyword classifier with the built-in rule set.
func NewKeyword() *Keyword {
	return &Keyword{
		PriorityRules: []Rule{
			{Value: string(domain.PriorityUrgent), Keywords: []string{
				"urgent", "asap", "critical", "emergency", "outage", "immediately", "blocker",
			}},
			{Value: string(domain.PriorityHigh), Keywords: []string{
				"important", "bug", "broken", "crash", "security", "fix", "failing", "high priority",
			}},
			{Value: string(domain.PriorityLow), Keywords: []string{
				"someday", "maybe", "minor", "typo", "cleanup", "nice to have", "low priority", "eventually",
			}},
		},
		CategoryRules: []Rule{
			{Value: "bug", Keywords: []string{"bug", "fix", "broken", "crash", "error", "failing", "regression"}},
			{Value: "feature", Keywords: []string{"add", "implement", "feature", "support", "build", "create"}},
			{Value: "docs", Keywords: []string{"doc", "docs", "documentation", "readme", "typo", "guide"}},
			{Value: "design", Keywords: []string{"design", "ui", "ux", "css", "layout", "style"}},
			{Value: "infra", Keywords: []string{"deploy", "server", "ci", "pipeline", "database", "infra", "backup"}},
			{Value: "research", Keywords: []string{"research", "investigate", "explore", "evaluate", "compare"}},
		},
	}
}

// Classify implements Classifier.
func (k *Keyword) Classify(content string) Result {
	lower := strings.ToLower(content)
	tokens := Tokens(lower)

	result := Result{Priority: domain.DefaultPriority, Category: DefaultCategory}
	if v, ok := match(k.PriorityRules, lower, tokens); ok {
		if p, err := domain.ParsePriority(v); err == nil {
			result.Priority = p
		}
	}
	if v, ok := match(k.CategoryRules, lower, tokens); ok {
		result.Category = v
	}
	return result
}

func match(rules []Rule, lower string, tokens map[string]struct{}) (string, bool) {
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(lower, kw) {
					return rule.Value, true
				}
				continue
			}
			if _, ok := tokens[kw]; ok {
				return rule.Value, true
			}
		}
	}
	return "", false
}

// Tokens splits text into its set of lowercase words.
func Tokens(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Similarity is the Jaccard index of the word sets of a and b, in [0, 1].
func Similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}
