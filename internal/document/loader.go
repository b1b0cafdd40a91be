// Package document fetches and parses the JSON documents handed to the validator.
package document

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
	"net/url"
	"os"
)

// ErrorType classifies recoverable load failures.
type ErrorType string

const (
	InvalidJSON  ErrorType = "InvalidJSON"
	FileNotFound ErrorType = "FileNotFound"
)

// LoadError describes an input that could not be turned into a document.
type LoadError struct {
	Type    ErrorType
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Loader reads documents from the filesystem or over HTTP.
type Loader struct {
	Client *http.Client
	Logger *slog.Logger
}

// NewLoader returns a loader; nil arguments fall back to http.DefaultClient
// and slog.Default.
func NewLoader(client *http.Client, logger *slog.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Client: client, Logger: logger}
}

// IsURL reports whether input has a scheme, a host and a path.
func IsURL(input string) bool {
	u, err := url.Parse(input)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != "" && u.Path != ""
}

// Load returns the parsed document. Missing inputs and malformed JSON are
// reported through LoadError; any other failure is returned as error.
func (l *Loader) Load(ctx context.Context, input string) (any, *LoadError, error) {
	var (
		data []byte
		err  error
	)
	if IsURL(input) {
		l.Logger.Info("Loading document from URL", "url", input)
		data, err = l.get(ctx, input)
	} else {
		l.Logger.Info("Loading document from filesystem", "path", input)
		data, err = os.ReadFile(input)
	}

	if errors.Is(err, fs.ErrNotExist) {
		l.Logger.Error("Document not found", "input", input, "error", err)
		return nil, &LoadError{Type: FileNotFound, Message: fmt.Sprintf("%s cannot be found", input)}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", input, err)
	}

	doc, err := Decode(data)
	if err != nil {
		l.Logger.Error("JSON decode error", "input", input, "error", err)
		return nil, &LoadError{Type: InvalidJSON, Message: fmt.Sprintf("%s is not Valid JSON", input)}, nil
	}
	return doc, nil, nil
}

// Decode parses exactly one JSON value, keeping numbers as json.Number.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return doc, nil
}

func (l *Loader) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%s: %w", resp.Status, fs.ErrNotExist)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
