package conversation

import (
	"encoding/json"
	"sort"
	"sync"
)

// SharedContext is a capability-namespaced key/value store that workers use
// to hand facts to each other within an episode. Workers write only to their
// own namespace and may read every namespace.
type SharedContext struct {
	mu   sync.RWMutex
	data map[string]map[string]interface{}
}

// NewSharedContext creates an empty store.
func NewSharedContext() *SharedContext {
	return &SharedContext{data: make(map[string]map[string]interface{})}
}

// Set stores a value under namespace/key.
func (s *SharedContext) Set(namespace, key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[string]map[string]interface{})
	}
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]interface{})
		s.data[namespace] = ns
	}
	ns[key] = value
}

// Get reads namespace/key.
func (s *SharedContext) Get(namespace, key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[namespace][key]
	return v, ok
}

// Namespace returns a copy of one namespace.
func (s *SharedContext) Namespace(namespace string) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]interface{}, len(s.data[namespace]))
	for k, v := range s.data[namespace] {
		out[k] = v
	}
	return out
}

// Namespaces lists namespaces in sorted order.
func (s *SharedContext) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scope returns a writer bound to one namespace.
func (s *SharedContext) Scope(namespace string) *Scope {
	return &Scope{shared: s, namespace: namespace}
}

// Len returns the number of stored keys across namespaces.
func (s *SharedContext) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ns := range s.data {
		n += len(ns)
	}
	return n
}

// String renders the store as indented JSON for prompts.
func (s *SharedContext) String() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler.
func (s *SharedContext) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.data)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SharedContext) UnmarshalJSON(b []byte) error {
	data := make(map[string]map[string]interface{})
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

// Scope is a SharedContext view that writes to a single namespace.
type Scope struct {
	shared    *SharedContext
	namespace string
}

// Namespace returns the namespace the scope writes to.
func (sc *Scope) Namespace() string {
	return sc.namespace
}

// Set writes key in the scope's namespace.
func (sc *Scope) Set(key string, value interface{}) {
	sc.shared.Set(sc.namespace, key, value)
}

// Get reads any namespace.
func (sc *Scope) Get(namespace, key string) (interface{}, bool) {
	return sc.shared.Get(namespace, key)
}

// Shared returns the underlying store for read access.
func (sc *Scope) Shared() *SharedContext {
	return sc.shared
}
