package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/opscart/index-maint/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLStore implements Store on PostgreSQL or SQLite
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open connects to the store and applies migrations
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	driver := strings.ToLower(cfg.Driver)
	switch driver {
	case "postgres", "postgresql":
		driver = "postgres"
	case "sqlite", "sqlite3":
		driver = "sqlite"
		if !strings.Contains(cfg.DSN, "_pragma=") {
			sep := "?"
			if strings.Contains(cfg.DSN, "?") {
				sep = "&"
			}
			cfg.DSN += sep + "_pragma=foreign_keys(1)"
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db, driver: driver}

	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *SQLStore) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, entry := range entries {
		schema, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		for _, stmt := range splitStatements(string(schema)) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute %s: %w", entry.Name(), err)
			}
		}
	}

	return nil
}

func splitStatements(schema string) []string {
	var lines []string
	for _, line := range strings.Split(schema, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}

	var statements []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveRun saves a run summary, assigning an id when missing
func (s *SQLStore) SaveRun(ctx context.Context, run *models.RunSummary) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}

	query := `
		INSERT INTO maintenance_runs (
			id, scope, started_at, finished_at, headline, analysis_only,
			targets_processed, structures_analyzed, rebuilds_performed,
			reorganizes_performed, errors, target_errors, pending, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		run.RunID, run.Scope, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		string(run.Headline), boolToInt(run.AnalysisOnly),
		run.TargetsProcessed, run.StructuresAnalyzed, run.RebuildsPerformed,
		run.ReorganizesPerformed, run.Errors, run.TargetErrors, run.Pending, run.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// SaveEntries saves audit entries in one transaction
func (s *SQLStore) SaveEntries(ctx context.Context, entries []*models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO maintenance_audit (
			id, run_id, target, schema_name, object_name, object_kind, index_name,
			action, status, error_message, fragmentation, size_units, command, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = uuid.New().String()
		}
		if entry.RecordedAt.IsZero() {
			entry.RecordedAt = time.Now()
		}
		_, err := stmt.ExecContext(ctx,
			entry.ID, entry.RunID, entry.Target, entry.Schema, entry.Object,
			string(entry.ObjectKind), entry.Index, string(entry.Action), string(entry.Status),
			entry.ErrorMessage, entry.FragmentationPercent, entry.SizeUnits, entry.Command,
			formatTime(entry.RecordedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save audit entry for %s: %w", entry.Index, err)
		}
	}

	return tx.Commit()
}

const runColumns = `
	id, scope, started_at, finished_at, headline, analysis_only,
	targets_processed, structures_analyzed, rebuilds_performed,
	reorganizes_performed, errors, target_errors, pending, detail
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.RunSummary, error) {
	var run models.RunSummary
	var startedAt, finishedAt, headline string
	var analysisOnly int

	err := row.Scan(
		&run.RunID, &run.Scope, &startedAt, &finishedAt, &headline, &analysisOnly,
		&run.TargetsProcessed, &run.StructuresAnalyzed, &run.RebuildsPerformed,
		&run.ReorganizesPerformed, &run.Errors, &run.TargetErrors, &run.Pending, &run.Detail,
	)
	if err != nil {
		return nil, err
	}

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTime(finishedAt); err != nil {
		return nil, err
	}
	run.Headline = models.Headline(headline)
	run.AnalysisOnly = analysisOnly != 0

	return &run, nil
}

// GetRun retrieves a run by id
func (s *SQLStore) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM maintenance_runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns lists the most recent runs, newest first
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM maintenance_runs ORDER BY started_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

const auditColumns = `
	id, run_id, target, schema_name, object_name, object_kind, index_name,
	action, status, error_message, fragmentation, size_units, command, recorded_at
`

func (s *SQLStore) queryEntries(ctx context.Context, query string, args ...any) ([]*models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var objectKind, action, status, recordedAt string
		var errorMessage, command sql.NullString

		err := rows.Scan(
			&entry.ID, &entry.RunID, &entry.Target, &entry.Schema, &entry.Object,
			&objectKind, &entry.Index, &action, &status, &errorMessage,
			&entry.FragmentationPercent, &entry.SizeUnits, &command, &recordedAt,
		)
		if err != nil {
			return nil, err
		}

		entry.ObjectKind = models.ObjectKind(objectKind)
		entry.Action = models.ActionType(action)
		entry.Status = models.StatusType(status)
		if errorMessage.Valid {
			entry.ErrorMessage = errorMessage.String
		}
		if command.Valid {
			entry.Command = command.String
		}
		if entry.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// GetRunEntries retrieves the audit entries of one run in insertion order
func (s *SQLStore) GetRunEntries(ctx context.Context, runID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM maintenance_audit
		WHERE run_id = ?
		ORDER BY target, recorded_at, index_name
	`
	return s.queryEntries(ctx, query, runID)
}

// GetStructureHistory retrieves past actions on one index, newest first
func (s *SQLStore) GetStructureHistory(ctx context.Context, target, schema, object, index string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT ` + auditColumns + `
		FROM maintenance_audit
		WHERE target = ? AND schema_name = ? AND object_name = ? AND index_name = ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`
	return s.queryEntries(ctx, query, target, schema, object, index, limit)
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
