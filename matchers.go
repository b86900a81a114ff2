package wsns

import (
	"reflect"

	"github.com/grafana/regexp"
)

// ParamMatcher validates the value of a namespace param. Either Match, Test
// or both may be set; a value is accepted when every set check accepts it.
type ParamMatcher struct {
	Match *regexp.Regexp
	Test  func(value string) bool
}

// ParamMatchers maps param names to their matchers.
type ParamMatchers map[string]*ParamMatcher

// NewParamMatcher converts a matcher given as a regular expression string,
// *regexp.Regexp, func(string) bool, ParamMatcher or *ParamMatcher into a
// *ParamMatcher. It panics on any other type or an invalid expression, as
// matchers are declared at definition time.
func NewParamMatcher(matcher any) *ParamMatcher {
	switch m := matcher.(type) {
	case string:
		return &ParamMatcher{Match: regexp.MustCompile(m)}
	case *regexp.Regexp:
		return &ParamMatcher{Match: m}
	case func(string) bool:
		return &ParamMatcher{Test: m}
	case ParamMatcher:
		return &m
	case *ParamMatcher:
		return m
	}
	panic("invalid param matcher type. Must be string, *regexp.Regexp, " +
		"func(string) bool, or ParamMatcher. Got: " + reflect.TypeOf(matcher).String())
}

// MatchNumber accepts params made of digits only.
func MatchNumber() *ParamMatcher {
	return &ParamMatcher{Match: regexp.MustCompile(`^[0-9]+$`)}
}

// MatchUUID accepts params formatted as a UUID.
func MatchUUID() *ParamMatcher {
	return &ParamMatcher{Match: regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)}
}

// MatchSlug accepts lower case slugs such as 'general-chat'.
func MatchSlug() *ParamMatcher {
	return &ParamMatcher{Match: regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)}
}

func (m *ParamMatcher) accepts(value string) bool {
	if m.Match != nil && !m.Match.MatchString(value) {
		return false
	}
	if m.Test != nil && !m.Test(value) {
		return false
	}
	return true
}

// merge returns a new set containing m overridden by local.
func (m ParamMatchers) merge(local ParamMatchers) ParamMatchers {
	merged := make(ParamMatchers, len(m)+len(local))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range local {
		merged[k] = v
	}
	return merged
}

// accepts checks every bound param against its matcher. Each segment of a
// wildcard capture is checked on its own.
func (m ParamMatchers) accepts(params Params) bool {
	if len(m) == 0 {
		return true
	}
	for key, value := range params {
		matcher, ok := m[key]
		if !ok {
			continue
		}
		if key == WildcardKey {
			for _, segment := range params.Wildcard() {
				if !matcher.accepts(segment) {
					return false
				}
			}
			continue
		}
		if !matcher.accepts(value) {
			return false
		}
	}
	return true
}
