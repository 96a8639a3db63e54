package datasource

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/opscart/index-maint/pkg/models"
)

// MySQLDialect approximates fragmentation from the share of free space in
// each InnoDB table. InnoDB rebuilds whole tables, so both verbs operate on
// the owning table: REBUILD copies it offline, REORGANIZE rebuilds it in
// place without locking. Each table is therefore reported once, as its
// clustered index (PRIMARY or GEN_CLUST_INDEX) sized over all of its
// indexes. Views carry no indexes in MySQL.
type MySQLDialect struct{}

func (MySQLDialect) Name() string       { return "mysql" }
func (MySQLDialect) DriverName() string { return "mysql" }

func (MySQLDialect) TargetDSN(baseDSN, target string) (string, error) {
	cfg, err := mysql.ParseDSN(baseDSN)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.DBName = target
	return cfg.FormatDSN(), nil
}

func (MySQLDialect) CurrentTargetQuery() string {
	return `SELECT DATABASE(), DATABASE()`
}

func (MySQLDialect) EligibleTargetsQuery() string {
	return `
		SELECT SCHEMA_NAME, SCHEMA_NAME
		FROM information_schema.SCHEMATA
		WHERE SCHEMA_NAME NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		ORDER BY SCHEMA_NAME
	`
}

func (MySQLDialect) StructuresQuery(target string, kind models.ObjectKind) (string, []any) {
	if kind == models.ObjectView {
		return "", nil
	}

	query := `
		SELECT t.TABLE_SCHEMA, t.TABLE_NAME,
		       COALESCE(MAX(CASE WHEN s.index_name IN ('PRIMARY', 'GEN_CLUST_INDEX') THEN s.index_name END), 'PRIMARY'),
		       'BTREE',
		       CASE WHEN t.DATA_LENGTH + t.INDEX_LENGTH + t.DATA_FREE = 0 THEN 0
		            ELSE t.DATA_FREE * 100.0 / (t.DATA_LENGTH + t.INDEX_LENGTH + t.DATA_FREE) END,
		       SUM(s.stat_value),
		       0
		FROM information_schema.TABLES t
		JOIN mysql.innodb_index_stats s
		  ON s.database_name = t.TABLE_SCHEMA
		 AND s.table_name = t.TABLE_NAME
		 AND s.stat_name = 'size'
		WHERE t.TABLE_SCHEMA = ?
		  AND t.TABLE_TYPE = 'BASE TABLE'
		  AND t.ENGINE = 'InnoDB'
		GROUP BY t.TABLE_SCHEMA, t.TABLE_NAME, t.DATA_LENGTH, t.INDEX_LENGTH, t.DATA_FREE
	`
	return query, []any{target}
}

func (MySQLDialect) CommandStatements(cmd models.Command) ([]string, error) {
	table := quoteBacktick(cmd.Schema) + "." + quoteBacktick(cmd.Object)

	switch cmd.Verb {
	case models.ActionRebuild:
		return []string{"ALTER TABLE " + table + " ENGINE=InnoDB, ALGORITHM=COPY"}, nil
	case models.ActionReorganize:
		return []string{"ALTER TABLE " + table + " FORCE, ALGORITHM=INPLACE, LOCK=NONE"}, nil
	default:
		return nil, unknownVerb(cmd)
	}
}

func (MySQLDialect) RefreshStatement(target, schema, object string) string {
	return "ANALYZE TABLE " + quoteBacktick(schema) + "." + quoteBacktick(object)
}

func quoteBacktick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
