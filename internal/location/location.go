// Package location describes where a table lives, independent of the storage
// backend that eventually serves it.
package location

import (
	"strings"

	"tableread/internal/errs"
)

// Category is one of the closed set of storage backends a Location can
// address.
type Category int

const (
	// Local is a path on the local filesystem.
	Local Category = iota + 1
	// Relative is a path relative to the workflow, the data area, the current
	// mountpoint or the current hub space. Specifier selects which.
	Relative
	// Mountpoint is a path inside a named mountpoint. Specifier is the name.
	Mountpoint
	// HubSpace is a path inside a hub space. Specifier is the space id.
	HubSpace
	// CustomURL is a full URL; every location is resolved independently.
	CustomURL
	// Connected is a path on a connection supplied by the caller.
	Connected
)

// Categories lists every category in declaration order.
var Categories = []Category{Local, Relative, Mountpoint, HubSpace, CustomURL, Connected}

var categoryNames = map[Category]string{
	Local:      "local",
	Relative:   "relative",
	Mountpoint: "mountpoint",
	HubSpace:   "hub_space",
	CustomURL:  "custom_url",
	Connected:  "connected",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// RequiresSpecifier reports whether locations of this category need a
// non-empty specifier.
func (c Category) RequiresSpecifier() bool {
	switch c {
	case Relative, Mountpoint, HubSpace:
		return true
	}
	return false
}

// ParseCategory parses the textual form produced by Category.String. It is
// case-insensitive and accepts '-' for '_'.
func ParseCategory(s string) (Category, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for c, name := range categoryNames {
		if name == norm {
			return c, nil
		}
	}
	return 0, errs.Configurationf("location: unknown category %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, errs.Configurationf("location: unknown category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Specifiers accepted by the Relative category.
const (
	RelativeToWorkflow   = "workflow"
	RelativeToData       = "data"
	RelativeToMountpoint = "mountpoint"
	RelativeToSpace      = "space"
)

// RelativeSpecifiers lists the accepted Relative specifiers.
var RelativeSpecifiers = []string{RelativeToWorkflow, RelativeToData, RelativeToMountpoint, RelativeToSpace}

// Location is an abstract reference to one storage item.
type Location struct {
	Category  Category
	Specifier string
	// Path is a filesystem path for Local, a slash-separated path for the
	// connection-backed categories and a full URL for CustomURL.
	Path string
}

// New returns a Location.
func New(c Category, specifier, path string) Location {
	return Location{Category: c, Specifier: specifier, Path: path}
}

func (l Location) String() string {
	if l.Specifier == "" {
		return l.Category.String() + ":" + l.Path
	}
	return l.Category.String() + "(" + l.Specifier + "):" + l.Path
}

// Validate checks the descriptor-level invariants. It does not look at any
// storage.
func (l Location) Validate() error {
	if !l.Category.Valid() {
		return errs.Configurationf("location: unknown category %d", int(l.Category))
	}
	if l.Category.RequiresSpecifier() && strings.TrimSpace(l.Specifier) == "" {
		return errs.Configurationf("location: category %s requires a specifier", l.Category)
	}
	if l.Category == Relative && !IsRelativeSpecifier(l.Specifier) {
		return errs.Configurationf("location: unknown relative specifier %q", l.Specifier)
	}
	if strings.TrimSpace(l.Path) == "" {
		return errs.Configurationf("location: %s path must not be empty", l.Category)
	}
	return nil
}

// IsRelativeSpecifier reports whether s is one of RelativeSpecifiers.
func IsRelativeSpecifier(s string) bool {
	for _, r := range RelativeSpecifiers {
		if r == s {
			return true
		}
	}
	return false
}
