package datasource

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/opscart/index-maint/pkg/models"
)

// SQLServerDialect reads fragmentation from sys.dm_db_index_physical_stats.
// A single server connection serves every database through three-part names.
type SQLServerDialect struct{}

func (SQLServerDialect) Name() string       { return "sqlserver" }
func (SQLServerDialect) DriverName() string { return "sqlserver" }

func (SQLServerDialect) TargetDSN(baseDSN, target string) (string, error) {
	return baseDSN, nil
}

func (SQLServerDialect) CurrentTargetQuery() string {
	return `SELECT DB_NAME(), CAST(DB_ID() AS varchar(16))`
}

func (SQLServerDialect) EligibleTargetsQuery() string {
	// state 0 = ONLINE; database_id 1-4 are the system databases
	return `
		SELECT name, CAST(database_id AS varchar(16))
		FROM sys.databases
		WHERE state = 0
		  AND is_read_only = 0
		  AND database_id > 4
		ORDER BY name
	`
}

func (SQLServerDialect) StructuresQuery(target string, kind models.ObjectKind) (string, []any) {
	objectType := "U"
	if kind == models.ObjectView {
		objectType = "V"
	}

	db := quoteBracket(target)
	query := fmt.Sprintf(`
		SELECT s.name, o.name, i.name, ps.index_type_desc,
		       ps.avg_fragmentation_in_percent, ps.page_count, i.is_disabled
		FROM sys.dm_db_index_physical_stats(DB_ID(@db), NULL, NULL, NULL, 'LIMITED') AS ps
		JOIN %[1]s.sys.indexes AS i ON i.object_id = ps.object_id AND i.index_id = ps.index_id
		JOIN %[1]s.sys.objects AS o ON o.object_id = i.object_id
		JOIN %[1]s.sys.schemas AS s ON s.schema_id = o.schema_id
		WHERE ps.index_id > 0
		  AND ps.alloc_unit_type_desc = 'IN_ROW_DATA'
		  AND o.is_ms_shipped = 0
		  AND o.type = @kind
	`, db)

	return query, []any{sql.Named("db", target), sql.Named("kind", objectType)}
}

func (SQLServerDialect) CommandStatements(cmd models.Command) ([]string, error) {
	on := fmt.Sprintf("ALTER INDEX %s ON %s.%s.%s",
		quoteBracket(cmd.Index), quoteBracket(cmd.Target), quoteBracket(cmd.Schema), quoteBracket(cmd.Object))

	switch cmd.Verb {
	case models.ActionRebuild:
		online := "OFF"
		if cmd.Online {
			online = "ON"
		}
		return []string{fmt.Sprintf("%s REBUILD WITH (FILLFACTOR = %d, ONLINE = %s)", on, cmd.FillFactor, online)}, nil
	case models.ActionReorganize:
		return []string{on + " REORGANIZE"}, nil
	default:
		return nil, unknownVerb(cmd)
	}
}

func (SQLServerDialect) RefreshStatement(target, schema, object string) string {
	return fmt.Sprintf("UPDATE STATISTICS %s.%s.%s", quoteBracket(target), quoteBracket(schema), quoteBracket(object))
}

func quoteBracket(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
