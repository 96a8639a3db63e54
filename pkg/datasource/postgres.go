package datasource

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"

	"github.com/opscart/index-maint/pkg/models"
)

// PostgresDialect reads btree fragmentation through the pgstattuple
// extension, which must be installed in every target database. Each target
// gets its own connection since PostgreSQL cannot query across databases.
//
// REBUILD maps to an offline REINDEX after setting the fill factor;
// REORGANIZE maps to REINDEX CONCURRENTLY, which keeps the index online.
type PostgresDialect struct{}

func (PostgresDialect) Name() string       { return "postgres" }
func (PostgresDialect) DriverName() string { return "postgres" }

// TargetDSN points the base DSN at another database. Both URL and
// key=value forms are accepted.
func (PostgresDialect) TargetDSN(baseDSN, target string) (string, error) {
	if strings.HasPrefix(baseDSN, "postgres://") || strings.HasPrefix(baseDSN, "postgresql://") {
		u, err := url.Parse(baseDSN)
		if err != nil {
			return "", fmt.Errorf("invalid postgres url: %w", err)
		}
		u.Path = "/" + target
		u.RawPath = ""
		return u.String(), nil
	}

	var parts []string
	for _, field := range strings.Fields(baseDSN) {
		if strings.HasPrefix(field, "dbname=") {
			continue
		}
		parts = append(parts, field)
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(target)
	parts = append(parts, fmt.Sprintf("dbname='%s'", escaped))
	return strings.Join(parts, " "), nil
}

func (PostgresDialect) CurrentTargetQuery() string {
	return `SELECT datname, oid::text FROM pg_database WHERE datname = current_database()`
}

func (PostgresDialect) EligibleTargetsQuery() string {
	return `
		SELECT datname, oid::text
		FROM pg_database
		WHERE datallowconn
		  AND NOT datistemplate
		  AND datname <> 'postgres'
		ORDER BY datname
	`
}

func (PostgresDialect) StructuresQuery(target string, kind models.ObjectKind) (string, []any) {
	relkind := "r"
	if kind == models.ObjectView {
		relkind = "m"
	}

	// invalid indexes cannot be inspected by pgstatindex and are skipped here
	query := `
		SELECT n.nspname, c.relname, ic.relname, am.amname,
		       CASE WHEN s.leaf_fragmentation = 'NaN'::float8 THEN 0 ELSE s.leaf_fragmentation END,
		       s.index_size / current_setting('block_size')::bigint,
		       NOT x.indisvalid
		FROM pg_index x
		JOIN pg_class c ON c.oid = x.indrelid
		JOIN pg_class ic ON ic.oid = x.indexrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_am am ON am.oid = ic.relam
		CROSS JOIN LATERAL pgstatindex(ic.oid::regclass) AS s
		WHERE am.amname = 'btree'
		  AND x.indisvalid
		  AND c.relkind = $1
		  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
		  AND n.nspname NOT LIKE 'pg_toast%'
	`
	return query, []any{relkind}
}

func (PostgresDialect) CommandStatements(cmd models.Command) ([]string, error) {
	index := pq.QuoteIdentifier(cmd.Schema) + "." + pq.QuoteIdentifier(cmd.Index)

	switch cmd.Verb {
	case models.ActionRebuild:
		return []string{
			fmt.Sprintf("ALTER INDEX %s SET (fillfactor = %d)", index, cmd.FillFactor),
			"REINDEX INDEX " + index,
		}, nil
	case models.ActionReorganize:
		return []string{"REINDEX INDEX CONCURRENTLY " + index}, nil
	default:
		return nil, unknownVerb(cmd)
	}
}

func (PostgresDialect) RefreshStatement(target, schema, object string) string {
	return "ANALYZE " + pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(object)
}
