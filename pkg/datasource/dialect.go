package datasource

import (
	"fmt"
	"strings"

	"github.com/opscart/index-maint/pkg/models"
)

// Dialect renders the engine-specific SQL used by SQLBackend.
//
// StructuresQuery must select, in order: schema, object, index, index type,
// fragmentation percent, size in pages and a disabled flag. An empty query
// means the engine has no structures of that kind.
type Dialect interface {
	Name() string
	DriverName() string
	TargetDSN(baseDSN, target string) (string, error)
	CurrentTargetQuery() string
	EligibleTargetsQuery() string
	StructuresQuery(target string, kind models.ObjectKind) (string, []any)
	CommandStatements(cmd models.Command) ([]string, error)
	RefreshStatement(target, schema, object string) string
}

// DialectByName returns one of the supported dialects
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlserver", "mssql":
		return SQLServerDialect{}, nil
	case "postgres", "postgresql":
		return PostgresDialect{}, nil
	case "mysql":
		return MySQLDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
}

// SupportedDialects lists the names accepted by DialectByName
func SupportedDialects() []string {
	return []string{"sqlserver", "postgres", "mysql"}
}

func unknownVerb(cmd models.Command) error {
	return fmt.Errorf("unsupported maintenance verb %q", cmd.Verb)
}
