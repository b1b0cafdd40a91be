// Package validation checks collection documents against a JSON Schema and
// cross-checks their catalog files.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/xeipuuv/gojsonschema"
)

// Outcome is the verdict of one validation stage.
type Outcome struct {
	Valid      bool
	Diagnostic string
}

func valid() Outcome { return Outcome{Valid: true} }

func invalid(format string, args ...any) Outcome {
	return Outcome{Diagnostic: fmt.Sprintf(format, args...)}
}

// Engine names the JSON Schema implementation used for structural checks.
type Engine string

const (
	EngineAuto         Engine = "auto"
	EngineGoJSONSchema Engine = "gojsonschema"
	EngineJSONSchema   Engine = "jsonschema"
)

// ParseEngine accepts the engine names used in configuration.
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case "", EngineAuto:
		return EngineAuto, nil
	case EngineGoJSONSchema, EngineJSONSchema:
		return e, nil
	default:
		return "", fmt.Errorf("unknown schema engine %q", s)
	}
}

// Structural validates documents against resolved schemas.
type Structural struct {
	Engine Engine
	Logger *slog.Logger
}

// NewStructural returns a validator using engine; an empty engine means auto.
func NewStructural(engine Engine, logger *slog.Logger) *Structural {
	if engine == "" {
		engine = EngineAuto
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Structural{Engine: engine, Logger: logger}
}

// EngineFor picks the implementation for a schema. Drafts 2019-09 and
// 2020-12 are only understood by the jsonschema engine.
func (s *Structural) EngineFor(schema any) Engine {
	if s.Engine != EngineAuto {
		return s.Engine
	}
	m, _ := schema.(map[string]any)
	declared, _ := m["$schema"].(string)
	if strings.Contains(declared, "2019-09") || strings.Contains(declared, "2020-12") {
		return EngineJSONSchema
	}
	return EngineGoJSONSchema
}

// Validate reports the first schema violation in doc. Errors raised while
// compiling or applying the schema become invalid outcomes.
func (s *Structural) Validate(doc, schema any) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("Schema validation panicked", "panic", r)
			out = invalid("%v", r)
		}
	}()

	s.Logger.Info("Validating collection")
	engine := s.EngineFor(schema)

	var err error
	switch engine {
	case EngineJSONSchema:
		out, err = validateJSONSchema(doc, schema)
	default:
		out, err = validateGoJSONSchema(doc, schema)
	}
	if err != nil {
		s.Logger.Error("Schema error", "engine", engine, "error", err)
		return invalid("%v", err)
	}
	if !out.Valid {
		s.Logger.Warn("Collection validation error", "engine", engine, "error", out.Diagnostic)
	}
	return out
}

func diagnostic(message string, path []string) string {
	return fmt.Sprintf("%s of [%s]", message, strings.Join(path, " "))
}

func validateGoJSONSchema(doc, schema any) (Outcome, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return Outcome{}, err
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return Outcome{}, err
	}
	if result.Valid() {
		return valid(), nil
	}

	first := firstError(result.Errors())
	return Outcome{Diagnostic: diagnostic(first.Description(), contextPath(first.Context()))}, nil
}

// firstError picks the error with the smallest location, then type and
// description.
func firstError(errs []gojsonschema.ResultError) gojsonschema.ResultError {
	sorted := append([]gojsonschema.ResultError(nil), errs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := sorted[i].Context().String(pathSep), sorted[j].Context().String(pathSep)
		if ci != cj {
			return ci < cj
		}
		if sorted[i].Type() != sorted[j].Type() {
			return sorted[i].Type() < sorted[j].Type()
		}
		return sorted[i].Description() < sorted[j].Description()
	})
	return sorted[0]
}

const (
	pathSep     = "\x1f"
	contextRoot = "(root)"
)

// contextPath turns "(root).attributes.0" into its keys.
func contextPath(ctx *gojsonschema.JsonContext) []string {
	if ctx == nil {
		return nil
	}
	parts := strings.Split(ctx.String(pathSep), pathSep)
	if len(parts) > 0 && parts[0] == contextRoot {
		parts = parts[1:]
	}
	return parts
}

func validateJSONSchema(doc, schema any) (Outcome, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return Outcome{}, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("collection.json", bytes.NewReader(data)); err != nil {
		return Outcome{}, fmt.Errorf("load schema: %w", err)
	}
	compiled, err := compiler.Compile("collection.json")
	if err != nil {
		return Outcome{}, fmt.Errorf("compile schema: %w", err)
	}

	err = compiled.Validate(doc)
	if err == nil {
		return valid(), nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return Outcome{}, err
	}
	ve = firstLeaf(ve)
	return Outcome{Diagnostic: diagnostic(ve.Message, pointerPath(ve.InstanceLocation))}, nil
}

// firstLeaf returns the innermost cause with the smallest instance location,
// breaking ties on keyword location and message.
func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return ve
	}
	var best *jsonschema.ValidationError
	for _, cause := range ve.Causes {
		leaf := firstLeaf(cause)
		if best == nil || leafLess(leaf, best) {
			best = leaf
		}
	}
	return best
}

func leafLess(a, b *jsonschema.ValidationError) bool {
	if a.InstanceLocation != b.InstanceLocation {
		return a.InstanceLocation < b.InstanceLocation
	}
	if a.KeywordLocation != b.KeywordLocation {
		return a.KeywordLocation < b.KeywordLocation
	}
	return a.Message < b.Message
}

// pointerPath splits a JSON pointer such as "/attributes/0" into its tokens.
func pointerPath(ptr string) []string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return nil
	}
	parts := strings.Split(ptr, "/")
	unescape := strings.NewReplacer("~1", "/", "~0", "~")
	for i, p := range parts {
		parts[i] = unescape.Replace(p)
	}
	return parts
}
