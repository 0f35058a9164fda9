/*
registry.go - Category registration and per-category configuration

PURPOSE:
  The CategoryRegistry supplies the set of valid categories and their
  settings (display name, balance floor). The engine treats it as an
  external collaborator: the Service validates against it and removes a
  category from it as the final step of deletion, but never stores
  balances or logs in it.

FLOOR:
  The floor is the minimum balance a category permits. Balances are
  clamped so they never end a mutation below it. Default 0; negative
  floors are allowed (e.g. a reputation category bounded at -100).
*/
package points

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CategorySettings holds per-category configuration.
type CategorySettings struct {
	Name  string
	Floor int64
}

// CategoryRegistry supplies the set of valid categories.
type CategoryRegistry interface {
	Exists(category Category) bool

	// Floor returns the category's minimum balance, 0 when the category
	// carries no explicit floor or is unknown.
	Floor(category Category) int64

	Settings(category Category) (CategorySettings, bool)

	// Register adds a category. Registering an existing slug fails.
	Register(category Category, settings CategorySettings) error

	// Delete removes a category. Deleting an absent slug is a no-op.
	Delete(category Category)

	// Slugs returns all registered category slugs, sorted.
	Slugs() []Category
}

// =============================================================================
// MEMORY REGISTRY
// =============================================================================

// MemoryRegistry is a mutex-guarded in-memory CategoryRegistry. It is
// the standard implementation; config loading populates one at startup.
type MemoryRegistry struct {
	mu         sync.RWMutex
	categories map[Category]CategorySettings
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{categories: make(map[Category]CategorySettings)}
}

func (r *MemoryRegistry) Exists(category Category) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.categories[category]
	return ok
}

func (r *MemoryRegistry) Floor(category Category) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.categories[category].Floor
}

func (r *MemoryRegistry) Settings(category Category) (CategorySettings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.categories[category]
	return s, ok
}

func (r *MemoryRegistry) Register(category Category, settings CategorySettings) error {
	if category == "" {
		return fmt.Errorf("%w: empty category slug", ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[category]; ok {
		return fmt.Errorf("%w: category %q already registered", ErrInvalidArgument, category)
	}
	r.categories[category] = settings
	return nil
}

func (r *MemoryRegistry) Delete(category Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.categories, category)
}

func (r *MemoryRegistry) Slugs() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]Category, 0, len(r.categories))
	for slug := range r.categories {
		slugs = append(slugs, slug)
	}
	sort.Slice(slugs, func(i, j int) bool { return slugs[i] < slugs[j] })
	return slugs
}

// =============================================================================
// SLUGS
// =============================================================================

// slugFold strips diacritics so "Crédits" slugifies to "credits".
var slugFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify derives a category slug from a display name: diacritics
// folded, lowercased, runs of non-alphanumerics collapsed to single
// dashes. Returns "" when nothing usable remains.
func Slugify(name string) Category {
	folded, _, err := transform.String(slugFold, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return Category(strings.Trim(b.String(), "-"))
}
