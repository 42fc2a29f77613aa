package model

import (
	"strings"
	"time"
)

// CategoryPathSeparator joins category names in a breadcrumb ("A > B > C").
const CategoryPathSeparator = ">"

// VariantColor is server-managed reference data. Identity is ID.
type VariantColor struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Hex  string `json:"hexCode"`
}

// VariantSize is server-managed reference data. Identity is ID.
type VariantSize struct {
	ID    uint   `json:"id"`
	Code  string `json:"code"`
	Label string `json:"label"`
}

type Category struct {
	ID       uint       `json:"id"`
	Name     string     `json:"name"`
	ParentID *uint      `json:"parentId,omitempty"`
	Children []Category `json:"children,omitempty"`
}

// CategoryPath is a flattened category tree node with its breadcrumb.
type CategoryPath struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
	Leaf bool   `json:"leaf"`
}

// Vocabulary is an immutable snapshot of the allowed colors, sizes and categories.
type Vocabulary struct {
	Colors     []VariantColor `json:"colors"`
	Sizes      []VariantSize  `json:"sizes"`
	Categories []Category     `json:"categories"`
	FetchedAt  time.Time      `json:"fetchedAt"`
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (v *Vocabulary) ColorByName(name string) (VariantColor, bool) {
	key := normalizeName(name)
	if key == "" {
		return VariantColor{}, false
	}
	for _, c := range v.Colors {
		if normalizeName(c.Name) == key {
			return c, true
		}
	}
	return VariantColor{}, false
}

func (v *Vocabulary) ColorByID(id uint) (VariantColor, bool) {
	for _, c := range v.Colors {
		if c.ID == id {
			return c, true
		}
	}
	return VariantColor{}, false
}

// SizeByName matches on the size code first, then on its label.
func (v *Vocabulary) SizeByName(name string) (VariantSize, bool) {
	key := normalizeName(name)
	if key == "" {
		return VariantSize{}, false
	}
	for _, s := range v.Sizes {
		if normalizeName(s.Code) == key {
			return s, true
		}
	}
	for _, s := range v.Sizes {
		if normalizeName(s.Label) == key {
			return s, true
		}
	}
	return VariantSize{}, false
}

func (v *Vocabulary) SizeByID(id uint) (VariantSize, bool) {
	for _, s := range v.Sizes {
		if s.ID == id {
			return s, true
		}
	}
	return VariantSize{}, false
}

// CategoryPaths flattens the category tree depth-first.
func (v *Vocabulary) CategoryPaths() []CategoryPath {
	var out []CategoryPath
	var walk func(nodes []Category, prefix string)
	walk = func(nodes []Category, prefix string) {
		for _, n := range nodes {
			path := n.Name
			if prefix != "" {
				path = prefix + " " + CategoryPathSeparator + " " + n.Name
			}
			out = append(out, CategoryPath{ID: n.ID, Name: n.Name, Path: path, Leaf: len(n.Children) == 0})
			walk(n.Children, path)
		}
	}
	walk(v.Categories, "")
	return out
}

func (v *Vocabulary) CategoryByID(id uint) (CategoryPath, bool) {
	for _, p := range v.CategoryPaths() {
		if p.ID == id {
			return p, true
		}
	}
	return CategoryPath{}, false
}

// LeafCategoryName returns the last segment of a breadcrumb path.
// "A > B > C" yields "C"; a plain name is returned trimmed.
func LeafCategoryName(path string) string {
	if !strings.Contains(path, CategoryPathSeparator) {
		return strings.TrimSpace(path)
	}
	parts := strings.Split(path, CategoryPathSeparator)
	return strings.TrimSpace(parts[len(parts)-1])
}
