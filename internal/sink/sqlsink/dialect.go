package sqlsink

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/pkg/errors"
)

// dialect captures what differs between the database/sql backends.
type dialect struct {
	name   string
	driver string
	// maxParams bounds the bind parameters of one statement.
	maxParams int
	// singleConn pins the pool to one connection (SQLite in-memory databases
	// exist per connection).
	singleConn  bool
	textType    string
	placeholder func(i int) string
	quoteIdent  func(id string) string
	createTable func(table string, cols []string) string
	validateDSN func(dsn string) error
}

var dialects = map[string]dialect{
	"sqlite": {
		name:        "sqlite",
		driver:      "sqlite",
		maxParams:   999,
		singleConn:  true,
		textType:    "TEXT",
		placeholder: func(int) string { return "?" },
		quoteIdent:  doubleQuote,
		validateDSN: func(dsn string) error { return nil },
	},
	"mysql": {
		name:        "mysql",
		driver:      "mysql",
		maxParams:   65535,
		textType:    "TEXT",
		placeholder: func(int) string { return "?" },
		quoteIdent:  backtick,
		validateDSN: func(dsn string) error {
			_, err := mysql.ParseDSN(dsn)
			return errors.Wrap(err, "mysql dsn")
		},
	},
	"mssql": {
		name:        "mssql",
		driver:      "sqlserver",
		maxParams:   2000,
		textType:    "NVARCHAR(MAX)",
		placeholder: func(i int) string { return "@p" + strconv.Itoa(i) },
		quoteIdent:  bracket,
		createTable: mssqlCreateTable,
		validateDSN: func(dsn string) error {
			_, err := msdsn.Parse(dsn)
			return errors.Wrap(err, "mssql dsn")
		},
	},
}

func lookupDialect(kind string) (dialect, bool) {
	d, ok := dialects[kind]
	return d, ok
}

// doubleQuote quotes an identifier segment ANSI style: "a""b".
func doubleQuote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// backtick quotes a MySQL identifier segment: `a``b`.
func backtick(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// bracket quotes a SQL Server identifier segment: [a]]b].
func bracket(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// quoteFQN quotes a possibly schema-qualified name like "dbo.people" segment
// by segment. Empty segments are dropped.
func quoteFQN(quote func(string) string, name string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, quote(p))
		}
	}
	return strings.Join(out, ".")
}

func (d dialect) fqn(name string) string { return quoteFQN(d.quoteIdent, name) }

// insertSQL builds INSERT INTO table (cols) VALUES (...), (...) for nrows
// rows.
func (d dialect) insertSQL(table string, columns []string, nrows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.fqn(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.quoteIdent(c))
	}
	b.WriteString(") VALUES ")
	p := 1
	for r := 0; r < nrows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.placeholder(p))
			p++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// rowsPerStatement is the largest row count whose parameters fit maxParams.
func (d dialect) rowsPerStatement(ncols int) int {
	if ncols <= 0 {
		return 1
	}
	n := d.maxParams / ncols
	if n < 1 {
		n = 1
	}
	return n
}

func columnDefs(quote func(string) string, typ string, cols []string) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quote(c) + " " + typ
	}
	return strings.Join(defs, ",\n  ")
}

// createTableSQL renders a CREATE TABLE for cols, all typed as text, that is
// a no-op when the table exists.
func (d dialect) createTableSQL(table string, cols []string) string {
	if d.createTable != nil {
		return d.createTable(table, cols)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", d.fqn(table), columnDefs(d.quoteIdent, d.textType, cols))
}

// mssqlCreateTable guards CREATE TABLE with OBJECT_ID; SQL Server has no
// IF NOT EXISTS clause for tables.
func mssqlCreateTable(table string, cols []string) string {
	fqn := quoteFQN(bracket, table)
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n  %s\n)",
		strings.ReplaceAll(fqn, "'", "''"), fqn, columnDefs(bracket, "NVARCHAR(MAX)", cols))
}
