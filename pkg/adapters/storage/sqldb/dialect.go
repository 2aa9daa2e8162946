package sqldb

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/config"
	"github.com/ekaya-inc/ekaya-rx/pkg/database"
)

// Dialect captures what differs between database/sql engines: the driver,
// how to build a DSN and how placeholders are spelled.
type Dialect struct {
	// Name is the storage engine and migration directory name.
	Name        string
	DisplayName string
	// DriverName is the database/sql driver registered by the driver package.
	DriverName  string
	DefaultPort int
	DSN         func(cfg *storage.Config) (string, error)
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder func(n int) string
	// MaxOpenConns overrides the pool size when non-zero.
	MaxOpenConns int
}

// Rebind rewrites a query written with ? markers into the dialect's syntax.
// Queries in this package never contain ? inside string literals.
func (d *Dialect) Rebind(query string) string {
	if d.Placeholder == nil {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	defaultSQLServerPort = 1433
	defaultMySQLPort     = 3306
)

// SQLServer uses go-mssqldb with SQL authentication.
var SQLServer = &Dialect{
	Name:        database.EngineSQLServer,
	DisplayName: "Microsoft SQL Server",
	DriverName:  "sqlserver",
	DefaultPort: defaultSQLServerPort,
	DSN:         sqlServerDSN,
	Placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
}

// MySQL uses go-sql-driver/mysql.
var MySQL = &Dialect{
	Name:        database.EngineMySQL,
	DisplayName: "MySQL",
	DriverName:  "mysql",
	DefaultPort: defaultMySQLPort,
	DSN:         mysqlDSN,
}

// SQLite uses the pure-Go modernc.org/sqlite driver. A single connection
// avoids SQLITE_BUSY between writers.
var SQLite = &Dialect{
	Name:         database.EngineSQLite,
	DisplayName:  "SQLite",
	DriverName:   "sqlite",
	DSN:          sqliteDSN,
	MaxOpenConns: 1,
}

// Dialects lists every dialect this package registers.
var Dialects = []*Dialect{SQLServer, MySQL, SQLite}

// sqlServerDSN builds a sqlserver:// URL with escaped credentials.
func sqlServerDSN(cfg *storage.Config) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("database is required")
	}
	port := cfg.Port
	if port == 0 {
		port = defaultSQLServerPort
	}

	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "disable")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		config.ResolveHostForDocker(cfg.Host),
		port,
		query.Encode(),
	), nil
}

// mysqlDSN builds a go-sql-driver DSN. Times are read back as time.Time in UTC
// and migrations may contain several statements.
func mysqlDSN(cfg *storage.Config) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("database is required")
	}
	port := cfg.Port
	if port == 0 {
		port = defaultMySQLPort
	}

	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.MultiStatements = true
	if cfg.TrustServerCertificate {
		mc.TLSConfig = "skip-verify"
	} else if cfg.Encrypt {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN(), nil
}

// sqliteDSN enables foreign keys on every connection so cascades fire.
func sqliteDSN(cfg *storage.Config) (string, error) {
	path := cfg.Path
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
}
