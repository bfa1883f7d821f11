package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/toothbrush/confluence-export/confluence"
)

func page(id, space string, version int) confluence.Page {
	return confluence.Page{
		ID:      id,
		Title:   "Title " + id,
		Space:   &confluence.Space{Key: space},
		Version: &confluence.Version{Number: version, When: "2024-05-10T09:00:00.000Z"},
	}
}

func openTemp(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "ledger.json")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestMissingFileIsEmpty(t *testing.T) {
	l, _ := openTemp(t)
	if l.Len() != 0 {
		t.Fatalf("expected an empty ledger")
	}
	if !l.ShouldProcess(page("A", "DOCS", 1), "") {
		t.Fatalf("unknown pages must be processed")
	}
}

func TestUnusableFilesAreTreatedAsEmpty(t *testing.T) {
	for name, content := range map[string]string{
		"corrupt":      `{"A": {"version": 1`,
		"wrong shape":  `["A", "B"]`,
		"wrong fields": `{"A": {"version": "three"}}`,
		"blank":        "  \n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ledger.json")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			l, err := Open(path, nil)
			if err != nil {
				t.Fatalf("Open should not fail on a bad state file: %v", err)
			}
			defer l.Close()
			if l.Len() != 0 {
				t.Fatalf("expected an empty ledger, got %v", l.IDs())
			}
		})
	}
}

func TestShouldProcessComparesVersions(t *testing.T) {
	l, _ := openTemp(t)
	if err := l.Commit(page("A", "DOCS", 3), nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tests := []struct {
		version int
		want    bool
	}{
		{version: 2, want: false},
		{version: 3, want: false},
		{version: 4, want: true},
	}
	for _, tt := range tests {
		if got := l.ShouldProcess(page("A", "DOCS", tt.version), ""); got != tt.want {
			t.Errorf("ShouldProcess(v%d) = %v, want %v", tt.version, got, tt.want)
		}
		// A forced space still goes through the version check.
		if got := l.ShouldProcess(page("A", "DOCS", tt.version), "DOCS"); got != tt.want {
			t.Errorf("ShouldProcess(v%d, force DOCS) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestCommitIsWriteThrough(t *testing.T) {
	l, path := openTemp(t)

	paths := map[string]string{"html": "/tmp/out/A.html", "pdf": "/tmp/out/A.pdf"}
	if err := l.Commit(page("A", "DOCS", 1), paths); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := l.Commit(page("B", "OPS", 7), nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// Mutating the caller's map must not affect what was recorded.
	paths["html"] = "elsewhere"

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	want := map[string]Entry{
		"A": {
			Title:        "Title A",
			SpaceKey:     "DOCS",
			Version:      1,
			LastModified: "2024-05-10T09:00:00.000Z",
			OutputPaths:  map[string]string{"html": "/tmp/out/A.html", "pdf": "/tmp/out/A.pdf"},
		},
		"B": {
			Title:        "Title B",
			SpaceKey:     "OPS",
			Version:      7,
			LastModified: "2024-05-10T09:00:00.000Z",
		},
	}
	if diff := cmp.Diff(want, reopened.Load()); diff != "" {
		t.Fatalf("persisted ledger mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B"}, reopened.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitNeverLowersVersion(t *testing.T) {
	l, _ := openTemp(t)
	if err := l.Commit(page("A", "DOCS", 5), nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	err := l.Commit(page("A", "DOCS", 4), nil)
	if !errors.Is(err, ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}
	if e, _ := l.Get("A"); e.Version != 5 {
		t.Fatalf("stored version changed to %d", e.Version)
	}

	// Re-exporting the same version is fine.
	if err := l.Commit(page("A", "DOCS", 5), nil); err != nil {
		t.Fatalf("Commit same version: %v", err)
	}
}

func TestGetAndHasSpace(t *testing.T) {
	l, _ := openTemp(t)
	if _, ok := l.Get("A"); ok {
		t.Fatalf("unexpected entry")
	}
	if l.HasSpace("DOCS") {
		t.Fatalf("empty ledger has no spaces")
	}

	if err := l.Commit(page("A", "DOCS", 1), nil); err != nil {
		t.Fatal(err)
	}
	if e, ok := l.Get("A"); !ok || e.Title != "Title A" {
		t.Fatalf("Get(A) = %+v, %v", e, ok)
	}
	if !l.HasSpace("DOCS") || l.HasSpace("OPS") {
		t.Fatalf("HasSpace is wrong")
	}
}

func TestSecondOpenIsLocked(t *testing.T) {
	_, path := openTemp(t)

	if _, err := Open(path, nil); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	l, path := openTemp(t)
	for v := 1; v <= 3; v++ {
		if err := l.Commit(page("A", "DOCS", v), nil); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{"ledger.json", "ledger.json.lock"}, names); diff != "" {
		t.Fatalf("directory contents mismatch (-want +got):\n%s", diff)
	}
}
