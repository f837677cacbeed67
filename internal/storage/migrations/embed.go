// Package migrations holds the embedded schema of the account, sale and
// market event stores and applies it.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// Migration is one schema file. Statements holds the whole file as a single
// entry unless the file was split.
type Migration struct {
	Name       string
	Statements []string
}

// Postgres returns the embedded PostgreSQL migrations in apply order.
func Postgres() ([]Migration, error) {
	return Load(postgresFS, "postgres", false)
}

// Clickhouse returns the embedded ClickHouse migrations in apply order, one
// statement per entry.
func Clickhouse() ([]Migration, error) {
	return Load(clickhouseFS, "clickhouse", true)
}

// Load reads the .sql files of dir in lexical order. Empty files are skipped.
// With split set each file is cut into single statements.
func Load(fsys fs.FS, dir string, split bool) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sql := string(data)
		if strings.TrimSpace(sql) == "" {
			continue
		}

		m := Migration{Name: name, Statements: []string{sql}}
		if split {
			if err := checkSplittable(sql); err != nil {
				return nil, fmt.Errorf("migration %s: %w", name, err)
			}
			m.Statements = splitStatements(sql)
		}
		out = append(out, m)
	}
	return out, nil
}

// splitStatements drops "--" comment lines and cuts the rest at semicolons.
// It does not understand quoting; checkSplittable rejects input it would
// cut incorrectly.
func splitStatements(input string) []string {
	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// checkSplittable fails on a semicolon inside a single-quoted literal or a
// block comment.
func checkSplittable(sql string) error {
	if strings.Contains(sql, "/*") {
		return fmt.Errorf("block comments are not supported")
	}
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}
	return nil
}
