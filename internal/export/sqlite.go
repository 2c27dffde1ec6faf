package export

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	_ "modernc.org/sqlite"
)

const records_table = "records"

// SQLiteSink writes the export into the `records` table of a sqlite
// database, the table is dropped and recreated every run. Rows keep their
// export order in the `position` column.
type SQLiteSink struct {
	db      *sql.DB
	tx      *sql.Tx
	insert  *sql.Stmt
	columns int
	rows    int
}

// NewSQLiteSink creates the parent directory of path through fs. The driver
// opens the database itself, so fs must be backed by the OS filesystem.
func NewSQLiteSink(fs afero.Fs, path string) (*SQLiteSink, error) {
	if path != ":memory:" {
		err := fs.MkdirAll(filepath.Dir(path), 0o755)
		if err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite only tolerates a single writer
	db.SetMaxOpenConns(1)

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &SQLiteSink{db: db, tx: tx}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SQLiteSink) WriteHeader(columns []string) error {
	_, err := s.tx.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", records_table))
	if err != nil {
		return fmt.Errorf("drop table: %w", err)
	}

	definitions := []string{"position INTEGER PRIMARY KEY"}
	placeholders := []string{"?"}
	names := []string{"position"}
	for _, c := range columns {
		definitions = append(definitions, quoteIdent(c)+" TEXT NOT NULL")
		placeholders = append(placeholders, "?")
		names = append(names, quoteIdent(c))
	}

	_, err = s.tx.Exec(fmt.Sprintf(
		"CREATE TABLE %s (%s)",
		records_table,
		strings.Join(definitions, ", "),
	))
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	s.insert, err = s.tx.Prepare(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		records_table,
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
	))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	s.columns = len(columns)
	return nil
}

func (s *SQLiteSink) WriteRow(fields []string) error {
	if s.insert == nil {
		return fmt.Errorf("row written before header")
	}
	if len(fields) != s.columns {
		return fmt.Errorf("row has %d fields, header has %d", len(fields), s.columns)
	}
	args := make([]any, 0, len(fields)+1)
	args = append(args, s.rows)
	for _, f := range fields {
		args = append(args, f)
	}
	_, err := s.insert.Exec(args...)
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	s.rows++
	return nil
}

func (s *SQLiteSink) closeStmt() error {
	if s.insert == nil {
		return nil
	}
	return s.insert.Close()
}

func (s *SQLiteSink) Close() error {
	err := s.closeStmt()
	if err != nil {
		return errors.Join(err, s.tx.Rollback(), s.db.Close())
	}
	err = s.tx.Commit()
	if err != nil {
		return errors.Join(err, s.db.Close())
	}
	return s.db.Close()
}

func (s *SQLiteSink) Discard() error {
	return errors.Join(s.closeStmt(), s.tx.Rollback(), s.db.Close())
}
