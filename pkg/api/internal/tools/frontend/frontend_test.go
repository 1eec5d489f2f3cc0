package frontend

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandlerFallsBackToIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>console</html>"), 0644); err != nil {
		t.Fatalf("failed to write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0644); err != nil {
		t.Fatalf("failed to write asset: %v", err)
	}

	if !HasContent(dir) {
		t.Fatal("expected content")
	}

	server := httptest.NewServer(Handler(dir))
	defer server.Close()

	for path, want := range map[string]string{
		"/app.js":        "console.log(1)",
		"/peers/unknown": "<html>console</html>",
	} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), want) {
			t.Fatalf("GET %s: status %d body %q", path, resp.StatusCode, body)
		}
	}
}

func TestHasContentMissingDir(t *testing.T) {
	if HasContent(filepath.Join(t.TempDir(), "missing")) {
		t.Fatal("missing directory has no content")
	}
}
