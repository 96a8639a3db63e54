package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opscart/index-maint/pkg/models"
)

// Connector caches one connection pool per DSN. Dialects that need a
// connection per target database get one pool per target.
type Connector struct {
	driverName string
	dialect    Dialect
	baseDSN    string

	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewConnector creates a connector for the dialect and base DSN
func NewConnector(dialect Dialect, dsn string) *Connector {
	return &Connector{
		driverName: dialect.DriverName(),
		dialect:    dialect,
		baseDSN:    dsn,
		pools:      make(map[string]*sql.DB),
	}
}

// Base returns the pool for the DSN the run was configured with
func (c *Connector) Base(ctx context.Context) (*sql.DB, error) {
	return c.open(ctx, c.baseDSN)
}

// ForTarget returns the pool that can reach the given target
func (c *Connector) ForTarget(ctx context.Context, target string) (*sql.DB, error) {
	dsn, err := c.dialect.TargetDSN(c.baseDSN, target)
	if err != nil {
		return nil, err
	}
	return c.open(ctx, dsn)
}

func (c *Connector) open(ctx context.Context, dsn string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.pools[dsn]; ok {
		return db, nil
	}

	db, err := sql.Open(c.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Maintenance runs one statement at a time; keep pools small
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c.pools[dsn] = db
	return db, nil
}

// Close closes every pool opened by the connector
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for dsn, db := range c.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.pools, dsn)
	}
	return errors.Join(errs...)
}

// SQLBackend implements every external collaborator over database/sql
type SQLBackend struct {
	dialect Dialect
	conn    *Connector
}

// NewSQLBackend creates a backend for a named dialect
func NewSQLBackend(dialectName, dsn string) (*SQLBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required for dialect %s", dialectName)
	}
	dialect, err := DialectByName(dialectName)
	if err != nil {
		return nil, err
	}
	return NewSQLBackendWithDialect(dialect, dsn), nil
}

// NewSQLBackendWithDialect creates a backend for an arbitrary dialect
func NewSQLBackendWithDialect(dialect Dialect, dsn string) *SQLBackend {
	return &SQLBackend{
		dialect: dialect,
		conn:    NewConnector(dialect, dsn),
	}
}

func (b *SQLBackend) Name() string {
	return b.dialect.Name()
}

// FetchStructures retrieves index metrics for one target and object kind
func (b *SQLBackend) FetchStructures(ctx context.Context, target models.Target, kind models.ObjectKind) ([]models.RawStructure, error) {
	query, args := b.dialect.StructuresQuery(target.Name, kind)
	if query == "" {
		return nil, nil
	}

	db, err := b.conn.ForTarget(ctx, target.Name)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query index metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var structures []models.RawStructure
	for rows.Next() {
		s := models.RawStructure{Kind: kind}
		var indexType sql.NullString
		if err := rows.Scan(
			&s.Schema, &s.Object, &s.Index, &indexType,
			&s.FragmentationPercent, &s.SizeUnits, &s.Disabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan index metrics: %w", err)
		}
		s.IndexType = indexType.String
		structures = append(structures, s)
	}

	return structures, rows.Err()
}

// Apply runs the statements of a maintenance command inside the target
func (b *SQLBackend) Apply(ctx context.Context, target string, cmd models.Command) error {
	statements, err := b.dialect.CommandStatements(cmd)
	if err != nil {
		return err
	}

	db, err := b.conn.ForTarget(ctx, target)
	if err != nil {
		return err
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RefreshStatistics updates optimizer statistics for one object
func (b *SQLBackend) RefreshStatistics(ctx context.Context, target, schema, object string) error {
	db, err := b.conn.ForTarget(ctx, target)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, b.dialect.RefreshStatement(target, schema, object))
	return err
}

// ListTargets enumerates databases for the requested scope
func (b *SQLBackend) ListTargets(ctx context.Context, scope models.Scope, name string) ([]models.Target, error) {
	db, err := b.conn.Base(ctx)
	if err != nil {
		return nil, err
	}

	switch scope {
	case models.ScopeCurrent:
		targets, err := queryTargets(ctx, db, b.dialect.CurrentTargetQuery())
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w: connection has no current database", models.ErrTargetNotFound)
		}
		return targets[:1], nil

	case models.ScopeAllEligible:
		return queryTargets(ctx, db, b.dialect.EligibleTargetsQuery())

	case models.ScopeSpecific:
		if name == "" {
			return nil, &models.ConfigurationError{Field: "database.name", Reason: "required when scope is SPECIFIC"}
		}
		targets, err := queryTargets(ctx, db, b.dialect.EligibleTargetsQuery())
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			if t.Name == name {
				return []models.Target{t}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", models.ErrTargetNotFound, name)

	default:
		return nil, &models.ConfigurationError{Field: "database.scope", Reason: fmt.Sprintf("unknown scope %q", scope)}
	}
}

func queryTargets(ctx context.Context, db *sql.DB, query string) ([]models.Target, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var targets []models.Target
	for rows.Next() {
		var name, id sql.NullString
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("failed to scan database: %w", err)
		}
		if !name.Valid || name.String == "" {
			continue
		}
		targets = append(targets, models.Target{Name: name.String, ID: id.String})
	}
	return targets, rows.Err()
}

// Close releases all pooled connections
func (b *SQLBackend) Close() error {
	return b.conn.Close()
}
