// Package deps accumulates the distinct libraries a package needs and who supplies them.
package deps

import (
	"fmt"
	"slices"
	"strings"

	"github.com/open-edge-platform/trunk-libdeps/internal/supplier"
)

// Set is the dependency set of one package. It only grows, and every recorded
// library has exactly one supplier. A Set is not safe for concurrent use.
type Set struct {
	resolver  supplier.Resolver
	libraries map[string]struct{}
	suppliers map[string]supplier.Supplier
}

// New returns an empty Set resolving through r, or the built-in table when r is nil.
func New(r supplier.Resolver) *Set {
	if r == nil {
		r = supplier.Default()
	}
	return &Set{
		resolver:  r,
		libraries: make(map[string]struct{}),
		suppliers: make(map[string]supplier.Supplier),
	}
}

// Add records library under its canonical name. It reports whether the
// library was new; adding a known library is a no-op.
func (s *Set) Add(library string) bool {
	name := s.resolver.Canonicalize(library)
	if _, ok := s.libraries[name]; ok {
		return false
	}
	s.libraries[name] = struct{}{}
	s.suppliers[name] = s.resolver.Resolve(name)
	return true
}

// AddAll adds each library in turn.
func (s *Set) AddAll(libraries []string) {
	for _, lib := range libraries {
		s.Add(lib)
	}
}

func (s *Set) Len() int {
	return len(s.libraries)
}

// Libraries returns the recorded library names in sorted order.
func (s *Set) Libraries() []string {
	libs := make([]string, 0, len(s.libraries))
	for lib := range s.libraries {
		libs = append(libs, lib)
	}
	slices.Sort(libs)
	return libs
}

// Supplier returns the supplier recorded for library.
func (s *Set) Supplier(library string) (supplier.Supplier, bool) {
	sup, ok := s.suppliers[library]
	return sup, ok
}

// String lists each library and its supplier, one per line.
func (s *Set) String() string {
	var b strings.Builder
	for _, lib := range s.Libraries() {
		fmt.Fprintf(&b, "\t%s met by %s\n", lib, s.suppliers[lib])
	}
	return b.String()
}
