package wsns

import "strings"

// Params represents the parameters extracted from a namespace name by
// matching it against the namespace pattern. A trailing wildcard capture is
// stored under WildcardKey as the captured segments joined with '/'.
type Params map[string]string

// Get returns the value of a parameter by key. An exact match is preferred,
// otherwise the lookup is case-insensitive. Returns an empty string if the key
// doesn't exist.
func (p Params) Get(key string) string {
	if v, ok := p[key]; ok {
		return v
	}
	for k, v := range p {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Has reports whether a parameter was bound. Absent optional params are not
// bound.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Wildcard returns the ordered segments captured by a trailing wildcard, or
// nil if the pattern had no wildcard.
func (p Params) Wildcard() []string {
	v, ok := p[WildcardKey]
	if !ok {
		return nil
	}
	return strings.Split(v, "/")
}

func (p Params) clone() Params {
	params := make(Params, len(p))
	for k, v := range p {
		params[k] = v
	}
	return params
}
