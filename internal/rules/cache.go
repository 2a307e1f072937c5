// Package rules implements the static reply engine: compiled when
// matchers, rule selection, reply picking, and placeholder rendering.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/llm-lab/mockllm/internal/config"
)

// matchFunc evaluates one condition. Both the raw text and its lowered
// form are supplied so insensitive matchers share one conversion.
type matchFunc func(text, lower string) bool

type compiledWhen struct {
	any  []matchFunc
	all  []matchFunc
	none []matchFunc
}

func (w *compiledWhen) eval(text string) bool {
	lower := strings.ToLower(text)
	ok := len(w.any) == 0
	for _, m := range w.any {
		if m(text, lower) {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	for _, m := range w.all {
		if !m(text, lower) {
			return false
		}
	}
	for _, m := range w.none {
		if m(text, lower) {
			return false
		}
	}
	return true
}

// Cache is the compiled match program of one static model, built once
// per snapshot: one entry per rule plus the default rule index.
type Cache struct {
	whens        []*compiledWhen // nil for rules without a when
	defaultIndex int
}

// NewCache compiles every when block of a static model. Regexes compile
// here so a bad pattern fails the whole load.
func NewCache(model *config.Model) (*Cache, error) {
	spec := model.Static
	cache := &Cache{
		whens:        make([]*compiledWhen, len(spec.Rules)),
		defaultIndex: -1,
	}
	for i, rule := range spec.Rules {
		if rule.Default && cache.defaultIndex < 0 {
			cache.defaultIndex = i
		}
		if rule.When == nil {
			continue
		}
		when, err := compileWhen(rule.When)
		if err != nil {
			return nil, fmt.Errorf("model %s rule %d: %w", model.ID, i, err)
		}
		cache.whens[i] = when
	}
	return cache, nil
}

// Select returns the index of the rule serving this request: the first
// matching when in list order, else the default rule, else the only rule.
// Conditions are only consulted when the request carried user text.
func (c *Cache) Select(text string, hasText bool) (int, error) {
	if hasText {
		for i, when := range c.whens {
			if when != nil && when.eval(text) {
				return i, nil
			}
		}
	}
	if c.defaultIndex >= 0 {
		return c.defaultIndex, nil
	}
	if len(c.whens) == 1 {
		return 0, nil
	}
	return 0, errors.New("no matching rule")
}

func compileWhen(when *config.When) (*compiledWhen, error) {
	out := &compiledWhen{}
	groups := []struct {
		conditions []config.Condition
		dst        *[]matchFunc
	}{
		{when.Any, &out.any},
		{when.All, &out.all},
		{when.None, &out.none},
	}
	for _, group := range groups {
		for _, cond := range group.conditions {
			m, err := compileCondition(cond)
			if err != nil {
				return nil, err
			}
			*group.dst = append(*group.dst, m)
		}
	}
	return out, nil
}

func compileCondition(cond config.Condition) (matchFunc, error) {
	if cond.Op == config.OpRegex {
		re, err := compileRegexLiteral(cond.Value)
		if err != nil {
			return nil, err
		}
		return func(text, _ string) bool { return re.MatchString(text) }, nil
	}

	needle := cond.Value
	insensitive := cond.Case == config.CaseInsensitive
	if insensitive {
		needle = strings.ToLower(needle)
	}
	pick := func(text, lower string) string {
		if insensitive {
			return lower
		}
		return text
	}
	switch cond.Op {
	case config.OpContains:
		return func(text, lower string) bool { return strings.Contains(pick(text, lower), needle) }, nil
	case config.OpEquals:
		return func(text, lower string) bool { return pick(text, lower) == needle }, nil
	case config.OpStartsWith:
		return func(text, lower string) bool { return strings.HasPrefix(pick(text, lower), needle) }, nil
	case config.OpEndsWith:
		return func(text, lower string) bool { return strings.HasSuffix(pick(text, lower), needle) }, nil
	default:
		return nil, fmt.Errorf("unknown condition operator %q", cond.Op)
	}
}

// compileRegexLiteral parses the /pattern/flags form. The body runs to
// the last unescaped slash; only the i flag is recognised.
func compileRegexLiteral(raw string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(raw, "/") {
		return nil, fmt.Errorf("regex %q must use /pattern/flags form", raw)
	}
	end := -1
	for i := len(raw) - 1; i > 0; i-- {
		if raw[i] != '/' {
			continue
		}
		backslashes := 0
		for j := i - 1; j > 0 && raw[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			end = i
			break
		}
	}
	if end <= 0 {
		return nil, fmt.Errorf("regex %q is missing its closing slash", raw)
	}

	pattern := raw[1:end]
	insensitive := false
	for _, flag := range raw[end+1:] {
		switch flag {
		case 'i':
			insensitive = true
		case ' ', '\t':
		default:
			return nil, fmt.Errorf("unknown regex flag %q", string(flag))
		}
	}
	if insensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", raw, err)
	}
	return re, nil
}
