package esmcol

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/gnemet/esmcol-validator/internal/document"
	"github.com/gnemet/esmcol-validator/internal/spec"
	"github.com/gnemet/esmcol-validator/internal/validation"
)

// ErrSpecUnavailable is returned by Run when no schema could be obtained.
var ErrSpecUnavailable = spec.ErrUnavailable

// Options configures a Validator.
type Options struct {
	// Version is the esm-collection-spec git ref, "master" when empty.
	Version  string
	SpecDirs []string
	BaseURL  string
	// Engine is one of "auto", "gojsonschema" or "jsonschema".
	Engine      string
	SkipCatalog bool
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Validator validates collection files and accumulates their status. It owns
// a temporary schema cache that Close removes.
type Validator struct {
	runID      string
	version    string
	resolver   *spec.Resolver
	loader     *document.Loader
	structural *validation.Structural
	catalog    *validation.CatalogChecker
	log        *slog.Logger

	status   Status
	messages []Message
}

// New builds a Validator and its schema cache. Callers must Close it to remove
// the cached schema files.
func New(opts Options) (*Validator, error) {
	engine, err := validation.ParseEngine(opts.Engine)
	if err != nil {
		return nil, err
	}
	if opts.Version == "" {
		opts.Version = spec.DefaultVersion
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	runID := uuid.New().String()
	log := opts.Logger.With("run_id", runID)

	resolver, err := spec.NewResolver(spec.Options{
		Dirs:    opts.SpecDirs,
		BaseURL: opts.BaseURL,
		Client:  opts.HTTPClient,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	v := &Validator{
		runID:      runID,
		version:    opts.Version,
		resolver:   resolver,
		loader:     document.NewLoader(opts.HTTPClient, log),
		structural: validation.NewStructural(engine, log),
		log:        log,
	}
	if !opts.SkipCatalog {
		v.catalog = validation.NewCatalogChecker(opts.HTTPClient, log)
		v.status.CatalogFiles = &Counts{}
	}
	v.log.Info("Validator started", "version", v.version)
	return v, nil
}

// RunID identifies this validator in logs and stored reports.
func (v *Validator) RunID() string { return v.runID }

// Close releases the schema cache directory.
func (v *Validator) Close() error {
	return v.resolver.Close()
}

// Status returns a copy of the accumulated tally.
func (v *Validator) Status() Status { return v.status.clone() }

// Messages returns the per-input messages in processing order.
func (v *Validator) Messages() []Message {
	return append([]Message(nil), v.messages...)
}

// Report snapshots the validator's messages and status.
func (v *Validator) Report() *Report {
	return &Report{
		RunID:    v.runID,
		Version:  v.version,
		Messages: v.Messages(),
		Status:   v.Status(),
	}
}

// Run validates one input path or URL and returns the updated report. Inputs
// that cannot be loaded count as unknown; documents that are not collections
// are listed but not counted. An error is returned only when validation
// cannot proceed at all, e.g. ErrSpecUnavailable.
func (v *Validator) Run(ctx context.Context, input string) (*Report, error) {
	msg, err := v.validate(ctx, input)
	if err != nil {
		return nil, err
	}
	v.messages = append(v.messages, msg)
	return v.Report(), nil
}

func (v *Validator) validate(ctx context.Context, input string) (Message, error) {
	msg := Message{Path: input}

	doc, lerr, err := v.loader.Load(ctx, input)
	if err != nil {
		return msg, err
	}
	if lerr != nil {
		msg.ValidCollection = boolPtr(false)
		msg.ErrorType = string(lerr.Type)
		msg.ErrorMessage = lerr.Message
		v.status.Unknown++
		return msg, nil
	}

	col, ok := IsCollection(doc)
	if !ok {
		v.log.Info("Document is not a collection", "path", input)
		return msg, nil
	}
	v.log.Info("Document is a collection", "path", input)

	schema, err := v.resolver.Resolve(ctx, spec.Ref{Name: spec.Collection, Version: v.version})
	if err != nil {
		return msg, err
	}

	structural := v.structural.Validate(col, schema.Document)
	msg.ValidCollection = boolPtr(structural.Valid)
	msg.ErrorMessage = structural.Diagnostic
	v.status.Collections.add(structural.Valid)

	if v.catalog != nil {
		cat := v.catalog.Check(ctx, col, baseDir(input))
		msg.ValidCatalog = boolPtr(cat.Valid)
		msg.CatalogErrorMessage = cat.Diagnostic
		v.status.CatalogFiles.add(cat.Valid)
	}
	return msg, nil
}

func baseDir(input string) string {
	if document.IsURL(input) {
		return ""
	}
	return filepath.Dir(input)
}

func boolPtr(b bool) *bool { return &b }
