package sqldb

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Dialect captures the handful of SQL differences between supported stores.
type Dialect struct {
	Name string

	// numbered is true when the driver expects $1, $2 ... placeholders.
	numbered bool
	// returning is true when inserts should read the new id via RETURNING.
	returning bool

	usersSchema []string
	tasksSchema []string
}

var (
	sqliteDialect = Dialect{
		Name: DriverSQLite,
		usersSchema: []string{`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL
)`},
		tasksSchema: []string{`
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_desc TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at)`,
		},
	}

	postgresDialect = Dialect{
		Name:      DriverPostgres,
		numbered:  true,
		returning: true,
		usersSchema: []string{`
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`},
		tasksSchema: []string{`
CREATE TABLE IF NOT EXISTS tasks (
	id BIGSERIAL PRIMARY KEY,
	task_desc TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at)`,
		},
	}

	mysqlDialect = Dialect{
		Name: DriverMySQL,
		usersSchema: []string{`
CREATE TABLE IF NOT EXISTS users (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	email VARCHAR(255) NOT NULL UNIQUE,
	password_hash VARCHAR(255) NOT NULL,
	created_at DATETIME(6) NOT NULL
)`},
		tasksSchema: []string{`
CREATE TABLE IF NOT EXISTS tasks (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	task_desc TEXT NOT NULL,
	status VARCHAR(32) NOT NULL DEFAULT 'pending',
	created_at DATETIME(6) NOT NULL,
	INDEX idx_tasks_created_at (created_at)
)`},
	}
)

// DialectFor returns the dialect registered under the given driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "sqlite3":
		return sqliteDialect, nil
	case DriverPostgres, "postgresql", "pg":
		return postgresDialect, nil
	case DriverMySQL:
		return mysqlDialect, nil
	}
	return Dialect{}, errors.New("unsupported database driver: " + driver)
}

// Rebind rewrites ? placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// IsUniqueViolation reports whether err came from a unique constraint.
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
