// Package category holds the ordered, immutable table of discovery categories.
package category

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
)

// Table is an ordered list of categories, read-only after construction.
type Table struct {
	ordered []crawler.Category
	byName  map[string]int
}

// New validates categories and builds a Table.
func New(categories []crawler.Category) (*Table, error) {
	if len(categories) == 0 {
		return nil, errors.New("at least one category is required")
	}
	t := &Table{
		ordered: make([]crawler.Category, len(categories)),
		byName:  make(map[string]int, len(categories)),
	}
	for i, c := range categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category %d: name is required", i)
		}
		if _, dup := t.byName[c.Name]; dup {
			return nil, fmt.Errorf("category %q: duplicate name", c.Name)
		}
		if !strings.Contains(c.ListingURL, crawler.PagePlaceholder) {
			return nil, fmt.Errorf("category %q: listing_url must contain %s", c.Name, crawler.PagePlaceholder)
		}
		t.ordered[i] = c
		t.byName[c.Name] = i
	}
	return t, nil
}

// Len returns the number of categories.
func (t *Table) Len() int {
	return len(t.ordered)
}

// At returns the category at index; false means the index is past the end
// (exhausted) or negative.
func (t *Table) At(index int) (crawler.Category, bool) {
	if index < 0 || index >= len(t.ordered) {
		return crawler.Category{}, false
	}
	return t.ordered[index], true
}

// Lookup finds a category by name.
func (t *Table) Lookup(name string) (crawler.Category, bool) {
	i, ok := t.byName[name]
	if !ok {
		return crawler.Category{}, false
	}
	return t.ordered[i], true
}

// ForURL resolves the category named by the URL's first path segment.
func (t *Table) ForURL(rawURL string) (crawler.Category, error) {
	segment, err := crawler.CategorySegment(rawURL)
	if err != nil {
		return crawler.Category{}, fmt.Errorf("%w: %w", crawler.ErrUnmappedCategory, err)
	}
	c, ok := t.Lookup(segment)
	if !ok {
		return crawler.Category{}, fmt.Errorf("%w: segment %q", crawler.ErrUnmappedCategory, segment)
	}
	return c, nil
}

// All returns a copy of the categories in order.
func (t *Table) All() []crawler.Category {
	out := make([]crawler.Category, len(t.ordered))
	copy(out, t.ordered)
	return out
}
