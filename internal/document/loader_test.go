package document

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestIsURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com/a/collection.json": true,
		"http://example.com/x":                  true,
		"https://example.com":                   false,
		"/tmp/collection.json":                  false,
		"collection.json":                       false,
		"file:///tmp/collection.json":           false,
	}
	for input, expected := range cases {
		if got := IsURL(input); got != expected {
			t.Errorf("IsURL(%q): expected %v, got %v", input, expected, got)
		}
	}
}

func TestLoadLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	if err := os.WriteFile(path, []byte(`{"id": "x", "n": 1.50}`), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, lerr, err := NewLoader(nil, nil).Load(context.Background(), path)
	if err != nil || lerr != nil {
		t.Fatalf("Load failed: %v %v", lerr, err)
	}
	m := doc.(map[string]any)
	if m["id"] != "x" {
		t.Errorf("Expected id 'x', got %v", m["id"])
	}
	if n, ok := m["n"].(json.Number); !ok || n.String() != "1.50" {
		t.Errorf("Expected json.Number 1.50, got %#v", m["n"])
	}
}

func TestLoadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	doc, lerr, err := NewLoader(nil, nil).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no fatal error, got %v", err)
	}
	if doc != nil {
		t.Errorf("Expected nil document, got %v", doc)
	}
	if lerr == nil || lerr.Type != FileNotFound {
		t.Fatalf("Expected FileNotFound, got %v", lerr)
	}
	if lerr.Message != path+" cannot be found" {
		t.Errorf("Unexpected message '%s'", lerr.Message)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	for _, content := range []string{`{"id": `, `{"id": "x"} trailing`, ``} {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		_, lerr, err := NewLoader(nil, nil).Load(context.Background(), path)
		if err != nil {
			t.Fatalf("Expected no fatal error, got %v", err)
		}
		if lerr == nil || lerr.Type != InvalidJSON {
			t.Errorf("Content %q: expected InvalidJSON, got %v", content, lerr)
		}
	}
}

func TestLoadDirectoryIsFatal(t *testing.T) {
	_, lerr, err := NewLoader(nil, nil).Load(context.Background(), t.TempDir())
	if lerr != nil {
		t.Errorf("Expected no LoadError, got %v", lerr)
	}
	if err == nil {
		t.Errorf("Expected an error reading a directory")
	}
}

func TestLoadRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.json":
			w.Write([]byte(`{"id": "remote"}`))
		case "/bad.json":
			w.Write([]byte(`<html>`))
		case "/broken.json":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewLoader(srv.Client(), nil)
	ctx := context.Background()

	doc, lerr, err := l.Load(ctx, srv.URL+"/good.json")
	if err != nil || lerr != nil {
		t.Fatalf("Load failed: %v %v", lerr, err)
	}
	if doc.(map[string]any)["id"] != "remote" {
		t.Errorf("Expected id 'remote', got %v", doc)
	}

	if _, lerr, _ := l.Load(ctx, srv.URL+"/bad.json"); lerr == nil || lerr.Type != InvalidJSON {
		t.Errorf("Expected InvalidJSON, got %v", lerr)
	}
	if _, lerr, _ := l.Load(ctx, srv.URL+"/nope.json"); lerr == nil || lerr.Type != FileNotFound {
		t.Errorf("Expected FileNotFound, got %v", lerr)
	}
	if _, _, err := l.Load(ctx, srv.URL+"/broken.json"); err == nil {
		t.Errorf("Expected fatal error for 500 response")
	}
}
