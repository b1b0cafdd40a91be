package reportstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	esmcol "github.com/gnemet/esmcol-validator"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store persists validation reports to PostgreSQL
type Store struct {
	db     *sql.DB
	schema string
	log    *slog.Logger
}

// Open connects to the database and verifies it is reachable. A nil logger
// falls back to slog.Default.
func Open(ctx context.Context, dsn, schema string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if schema == "" {
		schema = "public"
	}
	if !identRe.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("Report database not reachable", "schema", schema, "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db, schema: schema, log: logger}, nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) table(name string) string {
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(name)
}

// Migrate creates the report tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id     UUID PRIMARY KEY,
			version    TEXT NOT NULL,
			status     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table("validation_runs")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id            UUID NOT NULL REFERENCES %s (run_id) ON DELETE CASCADE,
			seq               INTEGER NOT NULL,
			path              TEXT NOT NULL,
			valid_esmcol      BOOLEAN,
			error_type        TEXT,
			error_message     TEXT,
			valid_esmcat      BOOLEAN,
			cat_error_message TEXT,
			PRIMARY KEY (run_id, seq)
		)`, s.table("validation_messages"), s.table("validation_runs")),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// Save writes one run and its messages in a single transaction. Saving the
// same run again replaces its messages.
func (s *Store) Save(ctx context.Context, r *esmcol.Report) error {
	runID, err := uuid.Parse(r.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", r.RunID, err)
	}
	status, err := json.Marshal(r.Status)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`INSERT INTO %s (run_id, version, status) VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO UPDATE SET version = EXCLUDED.version, status = EXCLUDED.status`, s.table("validation_runs"))
	if _, err := tx.ExecContext(ctx, upsert, runID.String(), r.Version, string(status)); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id = $1", s.table("validation_messages")), runID.String()); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s
		(run_id, seq, path, valid_esmcol, error_type, error_message, valid_esmcat, cat_error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.table("validation_messages"))
	for i, m := range r.Messages {
		if _, err := tx.ExecContext(ctx, insert, runID.String(), i, m.Path,
			nullBool(m.ValidCollection), nullString(m.ErrorType), nullString(m.ErrorMessage),
			nullBool(m.ValidCatalog), nullString(m.CatalogErrorMessage)); err != nil {
			return fmt.Errorf("failed to save message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	s.log.Debug("Saved validation report", "messages", len(r.Messages))
	return nil
}

// Load reads a stored report back
func (s *Store) Load(ctx context.Context, runID string) (*esmcol.Report, error) {
	r := &esmcol.Report{RunID: runID}
	var status []byte
	q := fmt.Sprintf("SELECT version, status FROM %s WHERE run_id = $1", s.table("validation_runs"))
	if err := s.db.QueryRowContext(ctx, q, runID).Scan(&r.Version, &status); err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if err := json.Unmarshal(status, &r.Status); err != nil {
		return nil, fmt.Errorf("invalid stored status: %w", err)
	}

	q = fmt.Sprintf(`SELECT path, valid_esmcol, error_type, error_message, valid_esmcat, cat_error_message
		FROM %s WHERE run_id = $1 ORDER BY seq`, s.table("validation_messages"))
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m                            esmcol.Message
			validCol, validCat           sql.NullBool
			errType, errMsg, catErrorMsg sql.NullString
		)
		if err := rows.Scan(&m.Path, &validCol, &errType, &errMsg, &validCat, &catErrorMsg); err != nil {
			return nil, err
		}
		m.ValidCollection = boolPtr(validCol)
		m.ValidCatalog = boolPtr(validCat)
		m.ErrorType = errType.String
		m.ErrorMessage = errMsg.String
		m.CatalogErrorMessage = catErrorMsg.String
		r.Messages = append(r.Messages, m)
	}
	return r, rows.Err()
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}
