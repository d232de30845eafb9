package status

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_ToColumn(t *testing.T) {
	tr := Default()
	for _, tc := range []struct {
		status string
		want   string
	}{
		{"open", "Backlog"},
		{"OPEN", "Backlog"},
		{" Closed ", "Done"},
		{"resolved", "Backlog"}, // unmapped falls back to the default column
		{"", "Backlog"},
	} {
		if got := tr.ToColumn(tc.status); got != tc.want {
			t.Errorf("ToColumn(%q) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestDefault_ToStatus(t *testing.T) {
	tr := Default()
	for _, tc := range []struct {
		column string
		want   string
	}{
		{"Backlog", "open"},
		{"work in progress", "open"},
		{"READY", "open"},
		{"Done", "closed"},
		{"done", "closed"},
		{"Archive", "open"}, // unmapped falls back to open
	} {
		if got := tr.ToStatus(tc.column); got != tc.want {
			t.Errorf("ToStatus(%q) = %q, want %q", tc.column, got, tc.want)
		}
	}
}

func TestNew_Rejects(t *testing.T) {
	valid := func() File {
		return File{
			DefaultColumn: "Backlog",
			ToColumn:      map[string]string{"open": "Backlog"},
			ToStatus:      map[string]string{"Backlog": "open"},
		}
	}
	for _, tc := range []struct {
		name   string
		mutate func(*File)
		errSub string
	}{
		{"NoDefault", func(f *File) { f.DefaultColumn = " " }, "default_column"},
		{"EmptyForward", func(f *File) { f.ToColumn = nil }, "to_column"},
		{"EmptyReverse", func(f *File) { f.ToStatus = map[string]string{} }, "to_status"},
		{"ReverseOutOfDomain", func(f *File) { f.ToStatus["Done"] = "resolved" }, "want"},
		{"DuplicateCaseInsensitive", func(f *File) { f.ToColumn["OPEN"] = "Ready" }, "twice"},
		{"EmptyColumn", func(f *File) { f.ToColumn["closed"] = "" }, "empty"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := valid()
			tc.mutate(&f)
			_, err := New(f)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.errSub) {
				t.Errorf("error %q does not mention %q", err, tc.errSub)
			}
		})
	}
}

func TestNew_ReverseIsManyToOne(t *testing.T) {
	tr, err := New(File{
		DefaultColumn: "Inbox",
		ToColumn:      map[string]string{"open": "Inbox", "closed": "Shipped"},
		ToStatus:      map[string]string{"Inbox": "open", "Doing": "OPEN", "Shipped": "closed", "Cancelled": "closed"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := tr.ToStatus("Doing"); got != "open" {
		t.Errorf("ToStatus(Doing) = %q, want open (value normalised)", got)
	}
	if got := tr.ToStatus("cancelled"); got != "closed" {
		t.Errorf("ToStatus(cancelled) = %q, want closed", got)
	}
	if got := strings.Join(tr.Columns(), ","); got != "Inbox,Shipped" {
		t.Errorf("Columns() = %q", got)
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "status.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
default_column = "Backlog"

[to_column]
open = "Backlog"
closed = "Done"

[to_status]
"Backlog" = "open"
"Work in progress" = "open"
"Done" = "closed"
`)
	tr, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := tr.ToColumn("closed"); got != "Done" {
		t.Errorf("ToColumn(closed) = %q, want Done", got)
	}
	if got := tr.DefaultColumn(); got != "Backlog" {
		t.Errorf("DefaultColumn() = %q", got)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeFile(t, `
default_column = "Backlog"
colour = "blue"

[to_column]
open = "Backlog"

[to_status]
"Backlog" = "open"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "colour") {
		t.Fatalf("expected unknown key error naming colour, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
