// Package status translates between osTicket task statuses and Kanboard
// column names.
package status

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/MMOzz/OSTKanBridge/internal/model"
)

// File is the on-disk TOML shape of a translation table.
//
//	default_column = "Backlog"
//
//	[to_column]
//	open = "Backlog"
//	closed = "Done"
//
//	[to_status]
//	"Backlog" = "open"
//	"Done" = "closed"
type File struct {
	DefaultColumn string            `toml:"default_column"`
	ToColumn      map[string]string `toml:"to_column"`
	ToStatus      map[string]string `toml:"to_status"`
}

// Translation is an immutable bidirectional lookup. The zero value is not
// usable; build one with New, Default, or Load.
type Translation struct {
	defaultColumn string
	toColumn      map[string]string // lower(status) -> column
	toStatus      map[string]string // lower(column) -> status
}

// Default returns the stock table: open/closed onto a four-column board.
func Default() *Translation {
	t, err := New(File{
		DefaultColumn: "Backlog",
		ToColumn: map[string]string{
			model.StatusOpen:   "Backlog",
			model.StatusClosed: "Done",
		},
		ToStatus: map[string]string{
			"Backlog":          model.StatusOpen,
			"Ready":            model.StatusOpen,
			"Work in progress": model.StatusOpen,
			"Done":             model.StatusClosed,
		},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// New validates f and builds a Translation from it.
func New(f File) (*Translation, error) {
	if strings.TrimSpace(f.DefaultColumn) == "" {
		return nil, fmt.Errorf("default_column is required")
	}
	if len(f.ToColumn) == 0 {
		return nil, fmt.Errorf("to_column must not be empty")
	}
	if len(f.ToStatus) == 0 {
		return nil, fmt.Errorf("to_status must not be empty")
	}

	t := &Translation{
		defaultColumn: f.DefaultColumn,
		toColumn:      make(map[string]string, len(f.ToColumn)),
		toStatus:      make(map[string]string, len(f.ToStatus)),
	}
	for s, col := range f.ToColumn {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || strings.TrimSpace(col) == "" {
			return nil, fmt.Errorf("to_column: empty status or column in %q = %q", s, col)
		}
		if _, dup := t.toColumn[key]; dup {
			return nil, fmt.Errorf("to_column: status %q listed twice", s)
		}
		t.toColumn[key] = col
	}
	for col, s := range f.ToStatus {
		key := strings.ToLower(strings.TrimSpace(col))
		if key == "" {
			return nil, fmt.Errorf("to_status: empty column name")
		}
		if _, dup := t.toStatus[key]; dup {
			return nil, fmt.Errorf("to_status: column %q listed twice", col)
		}
		switch v := strings.ToLower(s); v {
		case model.StatusOpen, model.StatusClosed:
			t.toStatus[key] = v
		default:
			return nil, fmt.Errorf("to_status: column %q maps to %q, want %q or %q", col, s, model.StatusOpen, model.StatusClosed)
		}
	}
	return t, nil
}

// Load reads and validates a TOML translation file. Unknown keys are an error.
func Load(path string) (*Translation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status map: %w", err)
	}
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("decode status map %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("decode status map %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	t, err := New(f)
	if err != nil {
		return nil, fmt.Errorf("status map %s: %w", path, err)
	}
	return t, nil
}

// ToColumn returns the column for a source status, matched case-insensitively.
// Unmapped statuses fall back to the default column.
func (t *Translation) ToColumn(sourceStatus string) string {
	if col, ok := t.toColumn[strings.ToLower(strings.TrimSpace(sourceStatus))]; ok {
		return col
	}
	return t.defaultColumn
}

// ToStatus returns the source status for a column, matched case-insensitively.
// Unmapped columns fall back to open.
func (t *Translation) ToStatus(column string) string {
	if s, ok := t.toStatus[strings.ToLower(strings.TrimSpace(column))]; ok {
		return s
	}
	return model.StatusOpen
}

// DefaultColumn returns the fallback column name.
func (t *Translation) DefaultColumn() string {
	return t.defaultColumn
}

// Columns returns the distinct column names the table knows about, sorted.
func (t *Translation) Columns() []string {
	seen := make(map[string]struct{})
	var cols []string
	add := func(c string) {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			cols = append(cols, c)
		}
	}
	add(t.defaultColumn)
	for _, c := range t.toColumn {
		add(c)
	}
	sort.Strings(cols)
	return cols
}
