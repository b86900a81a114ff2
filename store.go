package wsns

import (
	"sort"
	"sync"
	"sync/atomic"
)

// MatchedNamespace is the result of a successful store lookup.
type MatchedNamespace struct {
	Namespace *ResolvedNamespace
	Params    Params
}

// Store is the routing table of the server. Static patterns are kept in a
// map and looked up by exact name, dynamic patterns are scanned in
// registration order. Once committed the store is read without locking.
type Store struct {
	mu        sync.Mutex
	committed atomic.Bool

	static  map[string]*ResolvedNamespace
	dynamic []*ResolvedNamespace
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		static: map[string]*ResolvedNamespace{},
	}
}

// Add inserts a resolved namespace. It fails if the pattern is already
// registered, or if the store has been committed.
func (s *Store) Add(namespace *ResolvedNamespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := namespace.Pattern.String()
	if s.committed.Load() {
		return newCommittedError(pattern)
	}

	// Re-tokenize so definitions built by hand get the same validation as
	// those built with NewPattern.
	if _, err := NewPattern(pattern); err != nil {
		return err
	}

	if s.has(pattern) {
		return newDuplicateNamespaceError(pattern)
	}

	if namespace.Pattern.IsDynamic() {
		s.dynamic = append(s.dynamic, namespace)
	} else {
		s.static[pattern] = namespace
	}
	return nil
}

// Commit freezes the store. Calling Commit more than once is a no-op.
func (s *Store) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed.Store(true)
}

// IsCommitted reports whether Commit has been called.
func (s *Store) IsCommitted() bool {
	return s.committed.Load()
}

// StaticPatterns returns the static patterns, sorted.
func (s *Store) StaticPatterns() []string {
	defer s.readLock()()

	patterns := make([]string, 0, len(s.static))
	for pattern := range s.static {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns
}

// DynamicPatterns returns the dynamic patterns in registration order.
func (s *Store) DynamicPatterns() []string {
	defer s.readLock()()

	patterns := make([]string, 0, len(s.dynamic))
	for _, namespace := range s.dynamic {
		patterns = append(patterns, namespace.Pattern.String())
	}
	return patterns
}

// IsDynamicMatch reports whether name matches one of the dynamic patterns.
// Transports use it to decide whether to create a namespace on demand.
func (s *Store) IsDynamicMatch(name string) bool {
	defer s.readLock()()

	_, ok := s.matchDynamic(NormalizePattern(name))
	return ok
}

// Match finds the namespace serving name. Static patterns take priority,
// then dynamic patterns are tried in registration order. A dynamic pattern
// only matches if its params satisfy the namespace matchers.
func (s *Store) Match(name string) (*MatchedNamespace, bool) {
	defer s.readLock()()

	name = NormalizePattern(name)
	if namespace, ok := s.static[name]; ok {
		return &MatchedNamespace{Namespace: namespace, Params: Params{}}, true
	}
	return s.matchDynamic(name)
}

func (s *Store) matchDynamic(name string) (*MatchedNamespace, bool) {
	for _, namespace := range s.dynamic {
		params, ok := namespace.Pattern.Match(name)
		if !ok {
			continue
		}
		if !namespace.Matchers.accepts(params) {
			continue
		}
		return &MatchedNamespace{Namespace: namespace, Params: params}, true
	}
	return nil, false
}

func (s *Store) has(pattern string) bool {
	if _, ok := s.static[pattern]; ok {
		return true
	}
	for _, namespace := range s.dynamic {
		if namespace.Pattern.String() == pattern {
			return true
		}
	}
	return false
}

// readLock locks the store until it is committed, and returns the matching
// unlock.
func (s *Store) readLock() func() {
	if s.committed.Load() {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}
