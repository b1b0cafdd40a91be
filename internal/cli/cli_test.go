package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	esmcol "github.com/gnemet/esmcol-validator"
)

const schema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "catalog_file", "attributes", "assets"]
}`

const collection = `{"esmcat_version":"1.0","id":"x","description":"d","catalog_file":"t.csv","attributes":[{"column_name":"a"}],"assets":{"column_name":"b"}}`

type fixture struct {
	specDir string
	input   string
}

func newFixture(t *testing.T, header string) fixture {
	t.Helper()
	t.Setenv("ESMCOL_DB_DSN", "")

	specDir := t.TempDir()
	dataDir := t.TempDir()
	files := map[string]string{
		filepath.Join(specDir, "collection.json"): schema,
		filepath.Join(dataDir, "t.csv"):           header + "\n",
		filepath.Join(dataDir, "collection.json"): collection,
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fixture{specDir: specDir, input: filepath.Join(dataDir, "collection.json")}
}

func execute(t *testing.T, checkCatalog bool, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand("esmcol-validator", checkCatalog)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestCommandStatus(t *testing.T) {
	fx := newFixture(t, ",a,b")
	out, err := execute(t, true, fx.input, "--spec-dirs="+fx.specDir)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var status esmcol.Status
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("Expected JSON status, got %q: %v", out, err)
	}
	if status.Collections.Valid != 1 || status.CatalogFiles == nil || status.CatalogFiles.Valid != 1 || status.Unknown != 0 {
		t.Errorf("Unexpected status %+v", status)
	}
	if !strings.Contains(out, "\n    \"collections\"") {
		t.Errorf("Expected 4-space indented output, got %q", out)
	}
}

func TestCommandVerbose(t *testing.T) {
	fx := newFixture(t, ",a,b,extra")
	out, err := execute(t, true, fx.input, "--spec-dirs", fx.specDir, "--verbose")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var messages []esmcol.Message
	if err := json.Unmarshal([]byte(out), &messages); err != nil {
		t.Fatalf("Expected JSON messages, got %q: %v", out, err)
	}
	if len(messages) != 1 || messages[0].ValidCatalog == nil || *messages[0].ValidCatalog {
		t.Errorf("Expected an invalid catalog message, got %+v", messages)
	}
}

func TestCommandStructuralOnly(t *testing.T) {
	fx := newFixture(t, ",a,b,extra")
	out, err := execute(t, false, fx.input, "--spec-dirs", fx.specDir)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if strings.Contains(out, "catalog_files") {
		t.Errorf("Expected no catalog tally, got %s", out)
	}
}

func TestCommandMissingInputFile(t *testing.T) {
	fx := newFixture(t, ",a,b")
	out, err := execute(t, true, filepath.Join(t.TempDir(), "missing.json"), "--spec-dirs", fx.specDir)
	if err != nil {
		t.Fatalf("Expected exit 0 for a missing input, got %v", err)
	}
	if !strings.Contains(out, `"unknown": 1`) {
		t.Errorf("Expected unknown 1, got %s", out)
	}
}

func TestCommandTimer(t *testing.T) {
	fx := newFixture(t, ",a,b")
	out, err := execute(t, true, fx.input, "--spec-dirs", fx.specDir, "--timer")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "Validator took ") {
		t.Errorf("Expected timer line, got %s", out)
	}
}

func TestCommandNoArgs(t *testing.T) {
	if _, err := execute(t, true); err == nil {
		t.Errorf("Expected error without input argument")
	}
}

func TestCommandInvalidLogLevel(t *testing.T) {
	fx := newFixture(t, ",a,b")
	if _, err := execute(t, true, fx.input, "--spec-dirs", fx.specDir, "--log-level", "LOUD"); err == nil {
		t.Errorf("Expected error for invalid log level")
	}
}

func TestCommandSpecUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	fx := newFixture(t, ",a,b")
	out, err := execute(t, true, fx.input, "--spec-dirs", t.TempDir(), "--base-url", srv.URL)
	if !errors.Is(err, esmcol.ErrSpecUnavailable) {
		t.Fatalf("Expected ErrSpecUnavailable, got %v", err)
	}
	if out != "" {
		t.Errorf("Expected no report on stdout, got %s", out)
	}
}

func TestCommandConfigFile(t *testing.T) {
	fx := newFixture(t, ",a,b")
	cfgPath := filepath.Join(t.TempDir(), "validator.yaml")
	content := "spec:\n  dirs:\n    - " + fx.specDir + "\nlogging:\n  level: ERROR\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, true, fx.input, "--config", cfgPath)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, `"valid": 1`) {
		t.Errorf("Expected valid collection, got %s", out)
	}

	if _, err := execute(t, true, fx.input, "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Expected error for a missing explicit config file")
	}
}
