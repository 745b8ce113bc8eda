package policy

import (
	"sort"
)

// Whitelist is a set of app identifiers exempt from blocking. The zero value
// is an empty whitelist. It is not safe for concurrent mutation; the session
// controller owns it and hands out clones.
type Whitelist struct {
	ids map[string]struct{}
}

// NewWhitelist builds a whitelist from identifiers. Blank entries are skipped.
func NewWhitelist(ids ...string) Whitelist {
	w := Whitelist{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		w.Add(id)
	}
	return w
}

// Add inserts id and reports whether it was new.
func (w *Whitelist) Add(id string) bool {
	n := Normalize(id)
	if n == "" {
		return false
	}
	if w.ids == nil {
		w.ids = make(map[string]struct{})
	}
	if _, ok := w.ids[n]; ok {
		return false
	}
	w.ids[n] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present.
func (w *Whitelist) Remove(id string) bool {
	n := Normalize(id)
	if _, ok := w.ids[n]; !ok {
		return false
	}
	delete(w.ids, n)
	return true
}

// Contains reports whether id is whitelisted.
func (w Whitelist) Contains(id string) bool {
	_, ok := w.ids[Normalize(id)]
	return ok
}

// Len returns the number of entries.
func (w Whitelist) Len() int {
	return len(w.ids)
}

// List returns the entries sorted.
func (w Whitelist) List() []string {
	out := make([]string, 0, len(w.ids))
	for id := range w.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (w Whitelist) Clone() Whitelist {
	return NewWhitelist(w.List()...)
}

// Allowed is the effective allow set during a session: the user's whitelist
// plus the essential apps.
type Allowed struct {
	Whitelist  Whitelist
	Essentials *Registry
}

// Allows reports whether packageID may stay in the foreground.
func (a Allowed) Allows(packageID string) bool {
	if a.Whitelist.Contains(packageID) {
		return true
	}
	_, ok := a.Essentials.Match(packageID)
	return ok
}
