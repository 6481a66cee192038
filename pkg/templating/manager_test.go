package templating

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(tb testing.TB, path, content string) {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		tb.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		tb.Fatalf("failed to write %s: %v", path, err)
	}
}

// setupTestManager creates a TemplateManager over a small template tree.
func setupTestManager(tb testing.TB) *TemplateManager {
	tb.Helper()

	root := tb.TempDir()
	templateDir := filepath.Join(root, "templates")
	dataDir := filepath.Join(root, "data")

	writeFile(tb, filepath.Join(templateDir, "layout.part.gohtml"), `<title>{{block "title" .}}Default{{end}}</title>`)
	writeFile(tb, filepath.Join(templateDir, "nav.part.gohtml"), `{{define "nav"}}<nav>{{.}}</nav>{{end}}`)
	writeFile(tb, filepath.Join(templateDir, "index.gohtml"), `{{template "layout.part.gohtml" .}}{{define "title"}}Home{{end}}`)
	writeFile(tb, filepath.Join(templateDir, "other.gohtml"), `{{template "layout.part.gohtml" .}}`)
	writeFile(tb, filepath.Join(templateDir, "blog", "_pattern_.gohtml"), `pattern {{.title}}`)
	writeFile(tb, filepath.Join(dataDir, "snippets", "hello.txt"), "hello from data")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm, err := NewTemplateManager(logger, DefaultConfig(), templateDir, dataDir)
	if err != nil {
		tb.Fatalf("NewTemplateManager failed: %v", err)
	}
	return tm
}

func TestNewTemplateManager(t *testing.T) {
	tm := setupTestManager(t)

	wantPages := []string{"blog/_pattern_.gohtml", "index.gohtml", "other.gohtml"}
	if got := tm.GetTemplateNames(); !reflect.DeepEqual(got, wantPages) {
		t.Errorf("GetTemplateNames() = %v, want %v", got, wantPages)
	}
	wantPartials := []string{"layout.part.gohtml", "nav.part.gohtml"}
	if got := tm.GetPartialNames(); !reflect.DeepEqual(got, wantPartials) {
		t.Errorf("GetPartialNames() = %v, want %v", got, wantPartials)
	}
}

func TestManager_Lookup(t *testing.T) {
	tm := setupTestManager(t)

	name, err := tm.Lookup("blog/post1.gohtml", "blog/_pattern_.gohtml")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if name != "blog/_pattern_.gohtml" {
		t.Errorf("Lookup returned %q, want the pattern template", name)
	}

	if _, err = tm.Lookup("nope.gohtml", "_pattern_.gohtml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup error = %v, want ErrNotFound", err)
	}
	if _, err = tm.Lookup("nav.part.gohtml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("partials must not be served as pages, got err = %v", err)
	}
}

func TestManager_Execute(t *testing.T) {
	tm := setupTestManager(t)

	testCases := []struct {
		name string
		data any
		want string
	}{
		{"index.gohtml", nil, "<title>Home</title>"},
		{"other.gohtml", nil, "<title>Default</title>"},
		{"blog/_pattern_.gohtml", map[string]any{"title": "<b>x</b>"}, "pattern &lt;b&gt;x&lt;/b&gt;"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tm.Execute(&buf, tc.name, tc.data); err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if buf.String() != tc.want {
				t.Errorf("Execute output = %q, want %q", buf.String(), tc.want)
			}
		})
	}

	err := tm.Execute(io.Discard, "nonexistent.gohtml", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Execute error = %v, want ErrNotFound", err)
	}
}

func TestManager_Refresh(t *testing.T) {
	tm := setupTestManager(t)
	initialCount := len(tm.GetTemplateNames())

	writeFile(t, filepath.Join(tm.GetTemplateDir(), "docs", "new.gohtml"), `New Content`)
	if err := tm.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := len(tm.GetTemplateNames()); got != initialCount+1 {
		t.Errorf("expected %d templates after refresh, got %d", initialCount+1, got)
	}

	// A broken template is rejected and the previous set is kept.
	writeFile(t, filepath.Join(tm.GetTemplateDir(), "broken.gohtml"), `{{if}}`)
	if err := tm.Refresh(); err == nil {
		t.Fatal("expected Refresh to fail on a broken template")
	}
	if _, err := tm.Lookup("docs/new.gohtml"); err != nil {
		t.Errorf("previous templates lost after failed refresh: %v", err)
	}
}

func TestManager_ExecuteTemplateString(t *testing.T) {
	tm := setupTestManager(t)
	var buf bytes.Buffer
	if err := tm.ExecuteTemplateString(&buf, `{{add 1 2}} {{template "nav" .}}`, "x"); err != nil {
		t.Fatalf("ExecuteTemplateString failed: %v", err)
	}
	if buf.String() != "3 <nav>x</nav>" {
		t.Errorf("output = %q", buf.String())
	}

	if err := tm.ExecuteTemplateString(io.Discard, `{{`, nil); err == nil {
		t.Error("expected a parse error")
	}
}

func TestManager_SetConfig(t *testing.T) {
	tm := setupTestManager(t)
	newConfig := DefaultConfig()
	newConfig.Extension = "html"
	tm.SetConfig(newConfig)

	if got := tm.GetConfig().Extension; got != "html" {
		t.Errorf("SetConfig failed to update Extension: got %q", got)
	}

	writeFile(t, filepath.Join(tm.GetTemplateDir(), "plain.html"), `plain`)
	if err := tm.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := tm.GetTemplateNames(); !reflect.DeepEqual(got, []string{"plain.html"}) {
		t.Errorf("GetTemplateNames() = %v, want [plain.html]", got)
	}
}

func TestPatternFile(t *testing.T) {
	c := DefaultConfig()
	if got := c.PatternFile("."); got != "_pattern_.gohtml" {
		t.Errorf("PatternFile(.) = %q", got)
	}
	if got := c.PatternFile("blog/2024"); got != "blog/2024/_pattern_.gohtml" {
		t.Errorf("PatternFile(blog/2024) = %q", got)
	}
}

// BenchmarkExecute_Layout measures rendering a page through a partial layout.
func BenchmarkExecute_Layout(b *testing.B) {
	tm := setupTestManager(b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.Execute(io.Discard, "index.gohtml", nil)
	}
}

// BenchmarkExecute_Helpers measures the cost of the formatting helpers.
func BenchmarkExecute_Helpers(b *testing.B) {
	tm := setupTestManager(b)
	content := `{{formatDate "2023-01-15" "full"}} {{markdown "**bold** text"}} {{formatNumber 1234567}}`
	writeFile(b, filepath.Join(tm.GetTemplateDir(), "helpers.gohtml"), content)
	if err := tm.Refresh(); err != nil {
		b.Fatalf("Refresh failed: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.Execute(io.Discard, "helpers.gohtml", nil)
	}
}
