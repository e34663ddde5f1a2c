// Package roster implements the enrolled student list as an immutable,
// lexicographically sorted set of names.
package roster

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrEmptyName     = errors.New("student name required")
	ErrAlreadyExists = errors.New("student already exists in the list")
	ErrNotFound      = errors.New("student not found in the list")
)

// List is a sorted set of names. Methods never modify the receiver; they
// return a new List so published snapshots stay immutable.
type List []string

// New builds a List from arbitrary names: trimmed, blanks dropped, deduplicated
// and sorted.
func New(names ...string) List {
	seen := make(map[string]struct{}, len(names))
	out := make(List, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Contains reports an exact, case-sensitive match.
func (l List) Contains(name string) bool {
	i := sort.SearchStrings(l, name)
	return i < len(l) && l[i] == name
}

// Add returns a copy with name inserted in sorted position. The name is
// trimmed first; the stored form is what Add returns as the second value.
func (l List) Add(name string) (List, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return l, "", ErrEmptyName
	}
	i := sort.SearchStrings(l, name)
	if i < len(l) && l[i] == name {
		return l, name, ErrAlreadyExists
	}
	out := make(List, 0, len(l)+1)
	out = append(out, l[:i]...)
	out = append(out, name)
	out = append(out, l[i:]...)
	return out, name, nil
}

// Remove returns a copy without name.
func (l List) Remove(name string) (List, error) {
	i := sort.SearchStrings(l, name)
	if i >= len(l) || l[i] != name {
		return l, ErrNotFound
	}
	out := make(List, 0, len(l)-1)
	out = append(out, l[:i]...)
	return append(out, l[i+1:]...), nil
}

// Search returns the names containing query, case-insensitively, in roster
// order. A blank query returns the whole roster.
func (l List) Search(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]string, 0, len(l))
	for _, n := range l {
		if q == "" || strings.Contains(strings.ToLower(n), q) {
			out = append(out, n)
		}
	}
	return out
}

// Names returns a copy safe to hand to callers.
func (l List) Names() []string {
	return append([]string{}, l...)
}
