package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newHFServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/models/") {
			var info hfModelInfo
			for name := range files {
				info.Siblings = append(info.Siblings, hfSibling{Rfilename: name})
			}
			json.NewEncoder(w).Encode(info)
			return
		}
		name := r.URL.Path[strings.Index(r.URL.Path, "/resolve/main/")+len("/resolve/main/"):]
		content, ok := files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHFFetcher_Fetch(t *testing.T) {
	files := map[string]string{
		".gitattributes":     "noise",
		"config.json":        `{"arch":"llama"}`,
		"model.safetensors":  "weights",
		"tokenizer/vocab.js": "vocab",
	}
	srv := newHFServer(t, files)

	f := NewHFFetcher("hf_secret")
	f.BaseURL = srv.URL
	f.client = &http.Client{Timeout: 5 * time.Second}

	dir := t.TempDir()
	if err := f.Fetch(context.Background(), "acme/tiny", dir); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	for _, name := range []string{"config.json", "model.safetensors", filepath.Join("tokenizer", "vocab.js")} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != files[filepath.ToSlash(name)] {
			t.Errorf("%s content = %q", name, data)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, ".gitattributes")); !os.IsNotExist(err) {
		t.Error("git metadata must be skipped")
	}
}

func TestHFFetcher_EmptyRepo(t *testing.T) {
	srv := newHFServer(t, nil)

	f := NewHFFetcher("")
	f.BaseURL = srv.URL
	f.client = &http.Client{Timeout: 5 * time.Second}

	if err := f.Fetch(context.Background(), "acme/empty", t.TempDir()); err == nil {
		t.Fatal("expected an error for a repo with no files")
	}
}
