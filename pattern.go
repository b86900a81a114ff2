package wsns

import (
	"strings"
)

// WildcardKey is the reserved params key a trailing wildcard captures into.
const WildcardKey = "*"

// TokenKind identifies the kind of a single namespace pattern segment.
type TokenKind int

const (
	LiteralToken TokenKind = iota
	ParamToken
	OptionalParamToken
	WildcardToken
)

func (k TokenKind) String() string {
	switch k {
	case LiteralToken:
		return "literal"
	case ParamToken:
		return "param"
	case OptionalParamToken:
		return "optionalParam"
	case WildcardToken:
		return "wildcard"
	}
	return "unknown"
}

// Token is one segment of a tokenized namespace pattern. For literal tokens
// Value holds the segment, for params it holds the param name, and for the
// wildcard it holds WildcardKey.
type Token struct {
	Kind  TokenKind
	Value string
}

// Pattern is a normalized and tokenized namespace pattern. Patterns support
// static segments ('/admin'), named params ('/channels/:name'), a trailing
// optional param ('/users/:id?') and a trailing wildcard ('/chat/*'). Use
// NewPattern to create patterns from strings.
type Pattern struct {
	str    string
	tokens []Token
}

// NewPattern normalizes and tokenizes a pattern string. It returns an error
// if a param name is used more than once, if an optional param or a wildcard
// is not the last segment, or if a param has no name.
func NewPattern(patternStr string) (*Pattern, error) {
	normalized := NormalizePattern(patternStr)
	segments := splitSegments(normalized)
	for i, segment := range segments {
		if segment == "*" && i != len(segments)-1 {
			return nil, newInvalidPatternError(normalized, "wildcards must be the last segment")
		}
	}
	tokens := Tokenize(normalized)

	collectedParams := make(map[string]struct{}, len(tokens))
	for i, token := range tokens {
		switch token.Kind {
		case ParamToken, OptionalParamToken:
			if token.Value == "" {
				return nil, newInvalidPatternError(normalized, "params must have a name")
			}
			if _, ok := collectedParams[token.Value]; ok {
				return nil, newDuplicateParamError(token.Value, normalized)
			}
			collectedParams[token.Value] = struct{}{}
			if token.Kind == OptionalParamToken && i != len(tokens)-1 {
				return nil, newInvalidPatternError(normalized, "optional params must be the last segment")
			}
		}
	}

	return &Pattern{
		str:    normalized,
		tokens: tokens,
	}, nil
}

// NormalizePattern trims duplicate and trailing slashes and ensures a single
// leading slash. The root pattern is '/'. Normalizing an already normalized
// pattern returns it unchanged.
func NormalizePattern(pattern string) string {
	segments := splitSegments(pattern)
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}

// Tokenize splits a pattern into its tokens. A segment ':name' becomes a
// param, ':name?' an optional param, '*' a wildcard and anything else a
// literal. Everything after a wildcard is captured by it, so the wildcard is
// always the last token.
func Tokenize(pattern string) []Token {
	segments := splitSegments(pattern)
	tokens := make([]Token, 0, len(segments))

	for _, segment := range segments {
		switch {
		case segment == "*":
			return append(tokens, Token{Kind: WildcardToken, Value: WildcardKey})
		case strings.HasPrefix(segment, ":") && strings.HasSuffix(segment, "?") && len(segment) > 1:
			tokens = append(tokens, Token{Kind: OptionalParamToken, Value: segment[1 : len(segment)-1]})
		case strings.HasPrefix(segment, ":"):
			tokens = append(tokens, Token{Kind: ParamToken, Value: segment[1:]})
		default:
			tokens = append(tokens, Token{Kind: LiteralToken, Value: segment})
		}
	}

	return tokens
}

// String returns the normalized pattern.
func (p *Pattern) String() string {
	return p.str
}

// Tokens returns a copy of the pattern's tokens.
func (p *Pattern) Tokens() []Token {
	tokens := make([]Token, len(p.tokens))
	copy(tokens, p.tokens)
	return tokens
}

// IsDynamic reports whether the pattern contains at least one param,
// optional param or wildcard token.
func (p *Pattern) IsDynamic() bool {
	for _, token := range p.tokens {
		if token.Kind != LiteralToken {
			return true
		}
	}
	return false
}

// Match compares a namespace name to the pattern segment by segment and
// returns the params extracted from it. Absent optional params are omitted.
// A wildcard capture is stored under WildcardKey, see Params.Wildcard.
func (p *Pattern) Match(name string) (Params, bool) {
	return matchSegments(p.tokens, splitSegments(name))
}

func matchSegments(tokens []Token, segments []string) (Params, bool) {
	params := Params{}
	i := 0

	for _, token := range tokens {
		switch token.Kind {
		case LiteralToken:
			if i >= len(segments) || segments[i] != token.Value {
				return nil, false
			}
			i += 1
		case ParamToken:
			if i >= len(segments) {
				return nil, false
			}
			params[token.Value] = segments[i]
			i += 1
		case OptionalParamToken:
			if i < len(segments) {
				params[token.Value] = segments[i]
				i += 1
			}
		case WildcardToken:
			if i >= len(segments) {
				return nil, false
			}
			params[WildcardKey] = strings.Join(segments[i:], "/")
			i = len(segments)
		}
	}

	if i != len(segments) {
		return nil, false
	}

	return params, true
}

func splitSegments(str string) []string {
	rawSegments := strings.Split(str, "/")
	segments := rawSegments[:0]
	for _, segment := range rawSegments {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}
