// Package reservation tracks node names and IP addresses handed out to
// in-flight nodes that have not been committed to the database yet.
package reservation

import (
	"net/netip"
	"slices"
	"sync"
)

// Store holds the pending name and IP sets behind a single lock.
// The zero value is not usable; use NewStore.
type Store struct {
	mu    sync.Mutex
	names map[string]struct{}
	ips   map[netip.Addr]struct{}
}

// NewStore creates an empty reservation store
func NewStore() *Store {
	return &Store{
		names: make(map[string]struct{}),
		ips:   make(map[netip.Addr]struct{}),
	}
}

// Txn exposes the pending sets while the store lock is held.
// It must not be retained after the Do callback returns.
type Txn struct {
	s *Store
}

// HasName reports whether name is reserved
func (t Txn) HasName(name string) bool {
	_, ok := t.s.names[name]
	return ok
}

// AddName reserves name
func (t Txn) AddName(name string) {
	t.s.names[name] = struct{}{}
}

// Names returns a snapshot of every reserved name
func (t Txn) Names() []string {
	names := make([]string, 0, len(t.s.names))
	for name := range t.s.names {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HasIP reports whether ip is reserved
func (t Txn) HasIP(ip netip.Addr) bool {
	_, ok := t.s.ips[ip]
	return ok
}

// AddIP reserves ip
func (t Txn) AddIP(ip netip.Addr) {
	t.s.ips[ip] = struct{}{}
}

// Do runs fn with the store locked. Scanning for a free value and reserving
// it must happen inside a single Do call.
func (s *Store) Do(fn func(Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(Txn{s: s})
}

// ReserveIP reserves ip, returning false when it was already reserved
func (s *Store) ReserveIP(ip netip.Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ips[ip]; ok {
		return false
	}
	s.ips[ip] = struct{}{}
	return true
}

// Release drops reservations. Unknown values are ignored.
func (s *Store) Release(names []string, ips []netip.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		delete(s.names, name)
	}
	for _, ip := range ips {
		delete(s.ips, ip)
	}
}

// HasName reports whether name is currently reserved
func (s *Store) HasName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[name]
	return ok
}

// HasIP reports whether ip is currently reserved
func (s *Store) HasIP(ip netip.Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ips[ip]
	return ok
}

// Len returns the number of reserved names and IPs
func (s *Store) Len() (names, ips int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names), len(s.ips)
}
