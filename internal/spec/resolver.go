package spec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

// Resolved is a schema document together with the cache file it was written to.
type Resolved struct {
	Ref      Ref
	Document any
	Path     string
}

// Options configures a Resolver.
type Options struct {
	// Dirs are searched in order for "<name>.json" before going remote.
	Dirs    []string
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

// Resolver fetches schema documents and caches them for its own lifetime.
type Resolver struct {
	dirs    []string
	baseURL string
	client  *http.Client
	log     *slog.Logger

	mu       sync.Mutex
	cacheDir string
	cache    map[Ref]*Resolved
	closed   bool
}

// NewResolver allocates the private cache directory. Callers must Close the
// resolver to remove it.
func NewResolver(opts Options) (*Resolver, error) {
	dir, err := os.MkdirTemp("", "esmcol-spec-")
	if err != nil {
		return nil, fmt.Errorf("failed to create spec cache directory: %w", err)
	}

	r := &Resolver{
		dirs:     opts.Dirs,
		baseURL:  opts.BaseURL,
		client:   opts.Client,
		log:      opts.Logger,
		cacheDir: dir,
		cache:    make(map[Ref]*Resolved),
	}
	if r.baseURL == "" {
		r.baseURL = DefaultBaseURL
	}
	if r.client == nil {
		r.client = http.DefaultClient
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r, nil
}

// CacheDir returns the directory resolved schemas are persisted to.
func (r *Resolver) CacheDir() string {
	return r.cacheDir
}

// Close removes the cache directory. It is safe to call more than once.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.cache = make(map[Ref]*Resolved)
	if err := os.RemoveAll(r.cacheDir); err != nil {
		return fmt.Errorf("failed to remove spec cache directory: %w", err)
	}
	return nil
}

// Resolve returns the schema named by ref, reading local directories first
// when any are configured and falling back to the remote repository.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (*Resolved, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, &UnavailableError{Ref: ref, Err: errors.New("resolver is closed")}
	}
	if res, ok := r.cache[ref]; ok {
		r.log.Debug("Spec cache hit", "spec", ref.String())
		return res, nil
	}

	doc, err := r.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(r.cacheDir, ref.cacheName())
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, &UnavailableError{Ref: ref, Err: err}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, &UnavailableError{Ref: ref, Err: fmt.Errorf("failed to cache spec: %w", err)}
	}
	r.log.Debug("Copied spec to cache", "spec", ref.String(), "path", path)

	res := &Resolved{Ref: ref, Document: doc, Path: path}
	r.cache[ref] = res
	return res, nil
}

func (r *Resolver) fetch(ctx context.Context, ref Ref) (any, error) {
	if len(r.dirs) == 0 {
		r.log.Debug("Gathering specs from remote", "spec", ref.String())
		doc, err := r.fetchRemote(ctx, ref)
		if err != nil {
			r.log.Error("Spec download error", "spec", ref.String(), "error", err)
			return nil, &UnavailableError{Ref: ref, Err: err}
		}
		return doc, nil
	}

	for _, dir := range r.dirs {
		doc, err := readLocal(filepath.Join(dir, ref.Name+".json"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			r.log.Warn("Skipping unreadable spec file", "dir", dir, "spec", ref.Name, "error", err)
			continue
		}
		r.log.Debug("Gathered spec from local directory", "dir", dir, "spec", ref.Name)
		return doc, nil
	}

	r.log.Warn("Spec file not found in local directories, trying remote", "spec", ref.String(), "dirs", r.dirs)
	doc, err := r.fetchRemote(ctx, ref)
	if err != nil {
		r.log.Error("The specification file does not exist or does not match the file you are trying to validate; check the spec directories",
			"spec", ref.String(), "error", err)
		return nil, &UnavailableError{Ref: ref, Err: err}
	}
	return doc, nil
}

func (r *Resolver) fetchRemote(ctx context.Context, ref Ref) (any, error) {
	build, ok := URLs[ref.Name]
	if !ok {
		return nil, fmt.Errorf("no remote location known for spec %q", ref.Name)
	}
	url := build(r.baseURL, ref.Version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to download %s: %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return decode(data)
}

func readLocal(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid spec JSON: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("spec is not a JSON object")
	}
	return doc, nil
}
