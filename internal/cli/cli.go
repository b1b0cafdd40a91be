// Package cli builds the esmcol-validator and esmcat-validator commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	esmcol "github.com/gnemet/esmcol-validator"
	"github.com/gnemet/esmcol-validator/database/reportstore"
	"github.com/gnemet/esmcol-validator/internal/config"
)

type flags struct {
	specDirs   string
	version    string
	verbose    bool
	timer      bool
	logLevel   string
	configPath string
	engine     string
	baseURL    string
	dbDSN      string
}

// NewCommand returns the validator command. When checkCatalog is false only
// the structural schema check runs and the status has no catalog_files entry.
func NewCommand(name string, checkCatalog bool) *cobra.Command {
	f := &flags{}
	short := "Validate an ESM collection file and its catalog file"
	if !checkCatalog {
		short = "Validate an ESM collection file against the JSON schema"
	}

	cmd := &cobra.Command{
		Use:          name + " <file-or-url>",
		Short:        short,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, args[0], checkCatalog)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.specDirs, "spec-dirs", "None", "comma separated local directories holding <name>.json schema files")
	fl.StringVar(&f.version, "version", "master", "esm-collection-spec version (git tag or branch) to validate against")
	fl.BoolVar(&f.verbose, "verbose", false, "print per-file messages instead of the status")
	fl.BoolVar(&f.timer, "timer", false, "print how long validation took")
	fl.StringVar(&f.logLevel, "log-level", "CRITICAL", "CRITICAL, ERROR, WARNING, INFO or DEBUG")
	fl.StringVar(&f.configPath, "config", config.DefaultPath, "YAML configuration file")
	fl.StringVar(&f.engine, "engine", "auto", "schema engine: auto, gojsonschema or jsonschema")
	fl.StringVar(&f.baseURL, "base-url", "", "raw content root of the specification repository")
	fl.StringVar(&f.dbDSN, "db-dsn", "", "PostgreSQL DSN to store the report in")
	return cmd
}

// settings merges the config file with the flags that were set explicitly.
func settings(cmd *cobra.Command, f *flags) (*config.Config, error) {
	changed := cmd.Flags().Changed
	cfg, err := config.Load(f.configPath, changed("config"))
	if err != nil {
		return nil, err
	}
	if changed("spec-dirs") {
		cfg.Spec.Dirs = config.SplitDirs(f.specDirs)
	}
	if changed("version") {
		cfg.Spec.Version = f.version
	}
	if changed("engine") {
		cfg.Spec.Engine = f.engine
	}
	if changed("base-url") {
		cfg.Spec.BaseURL = f.baseURL
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if changed("db-dsn") {
		cfg.Database.DSN = f.dbDSN
	}
	return cfg, nil
}

func run(cmd *cobra.Command, f *flags, input string, checkCatalog bool) error {
	start := time.Now()
	ctx := cmd.Context()

	cfg, err := settings(cmd, f)
	if err != nil {
		return err
	}
	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	timeout, err := cfg.Timeout()
	if err != nil {
		return err
	}

	v, err := esmcol.New(esmcol.Options{
		Version:     cfg.Spec.Version,
		SpecDirs:    cfg.Spec.Dirs,
		BaseURL:     cfg.Spec.BaseURL,
		Engine:      cfg.Spec.Engine,
		SkipCatalog: !checkCatalog,
		HTTPClient:  &http.Client{Timeout: timeout},
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer v.Close()

	report, err := v.Run(ctx, strings.TrimSpace(input))
	if err != nil {
		return err
	}

	var out any = report.Status
	if f.verbose {
		out = report.Messages
	}
	if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}

	if cfg.Database.DSN != "" {
		if err := store(cmd, cfg, report, logger.With("run_id", report.RunID)); err != nil {
			return err
		}
	}

	if f.timer {
		fmt.Fprintf(cmd.OutOrStdout(), "Validator took %.2f seconds\n", time.Since(start).Seconds())
	}
	return nil
}

func store(cmd *cobra.Command, cfg *config.Config, report *esmcol.Report, logger *slog.Logger) error {
	ctx := cmd.Context()
	s, err := reportstore.Open(ctx, cfg.Database.DSN, cfg.Database.Schema, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Migrate(ctx); err != nil {
		return err
	}
	return s.Save(ctx, report)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
