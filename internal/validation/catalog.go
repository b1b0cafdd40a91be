package validation

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gnemet/esmcol-validator/internal/document"
)

// CatalogChecker compares a collection's declared columns with the header of
// the catalog file it references.
type CatalogChecker struct {
	Client *http.Client
	Logger *slog.Logger
}

// NewCatalogChecker returns a checker fetching remote catalogs with client.
// Nil arguments fall back to http.DefaultClient and slog.Default.
func NewCatalogChecker(client *http.Client, logger *slog.Logger) *CatalogChecker {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogChecker{Client: client, Logger: logger}
}

// ExpectedColumns lists the attribute columns, the format column when one is
// declared, and the asset column.
func ExpectedColumns(col map[string]any) (file string, columns []string, err error) {
	file, ok := col["catalog_file"].(string)
	if !ok || file == "" {
		return "", nil, errors.New("collection has no 'catalog_file'")
	}
	attrs, ok := col["attributes"].([]any)
	if !ok {
		return "", nil, errors.New("collection has no 'attributes' list")
	}
	assets, ok := col["assets"].(map[string]any)
	if !ok {
		return "", nil, errors.New("collection has no 'assets' object")
	}

	_, hasFormat := assets["format"]
	formatColumn, hasFormatColumn := assets["format_column_name"]
	if hasFormat && hasFormatColumn {
		return "", nil, errors.New("'format' and 'format_column_name' are mutually exclusive")
	}

	for i, a := range attrs {
		m, _ := a.(map[string]any)
		name, ok := m["column_name"].(string)
		if !ok {
			return "", nil, fmt.Errorf("attribute %d has no 'column_name'", i)
		}
		columns = append(columns, name)
	}
	if hasFormatColumn {
		columns = append(columns, fmt.Sprint(formatColumn))
	}
	assetColumn, ok := assets["column_name"].(string)
	if !ok {
		return "", nil, errors.New("assets have no 'column_name'")
	}
	return file, append(columns, assetColumn), nil
}

// Check validates the catalog file referenced by col. Relative local paths
// that do not exist from the working directory are retried under baseDir.
//
// Only columns present in the file but undeclared in the collection make it
// invalid; declared columns missing from the file are accepted.
func (c *CatalogChecker) Check(ctx context.Context, col map[string]any, baseDir string) Outcome {
	file, expected, err := ExpectedColumns(col)
	if err != nil {
		c.Logger.Warn("Collection cannot be cross-checked", "error", err)
		return invalid("%v", err)
	}

	actual, err := c.ReadColumns(ctx, c.locate(file, baseDir))
	if errors.Is(err, fs.ErrNotExist) {
		c.Logger.Error("Catalog file does not exist", "catalog_file", file, "error", err)
		return invalid("could not read catalog file: %s", file)
	}
	if err != nil {
		c.Logger.Error("Catalog file error", "catalog_file", file, "error", err)
		return invalid("%v", err)
	}

	want := toSet(expected)
	have := toSet(actual)
	if subset(want, have) && !subset(have, want) {
		var extra []string
		for name := range have {
			if _, ok := want[name]; !ok {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		return invalid("Catalog file: %s contains %v columns that are not found in esm collection spec.", file, extra)
	}
	return valid()
}

func (c *CatalogChecker) locate(file, baseDir string) string {
	if document.IsURL(file) || filepath.IsAbs(file) || baseDir == "" {
		return file
	}
	if _, err := os.Stat(file); err == nil {
		return file
	}
	alt := filepath.Join(baseDir, file)
	if _, err := os.Stat(alt); err == nil {
		return alt
	}
	return file
}

// ReadColumns returns the header of a delimited text file without its
// leading index column. Gzip-compressed input is detected by its magic bytes.
func (c *CatalogChecker) ReadColumns(ctx context.Context, location string) ([]string, error) {
	rc, err := c.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	var src io.Reader = br
	if magic, _ := br.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", location, err)
		}
		defer zr.Close()
		src = zr
	}

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if strings.HasSuffix(strings.TrimSuffix(strings.ToLower(location), ".gz"), ".tsv") {
		r.Comma = '\t'
	}

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("no columns to parse from file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", location, err)
	}
	if len(header) == 0 {
		return nil, nil
	}
	// Blank header cells are named by position, like pandas does.
	for i, h := range header {
		if h == "" {
			header[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}
	return header[1:], nil
}

func (c *CatalogChecker) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !document.IsURL(location) {
		return os.Open(location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", resp.Status, fs.ErrNotExist)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download %s: %s", location, resp.Status)
	}
	return resp.Body, nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}

func subset(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
