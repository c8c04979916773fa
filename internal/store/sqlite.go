// Package store persists the cleaned dataset as a SQLite table.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ricesearch/disaster-response/internal/dataset"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/pkg/logger"
)

// DefaultTable is the table written by the process command.
const DefaultTable = "messages"

const (
	idColumn      = "id"
	messageColumn = "message"
)

// DatasetStore reads and writes cleaned datasets in a SQLite file. Each
// dataset is one table with id, message and one INTEGER column per label.
type DatasetStore struct {
	db  *sql.DB
	log *logger.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, log *logger.Logger) (*DatasetStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.StorageError("failed to open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.StorageError("failed to open database", err)
	}

	if log == nil {
		log = logger.Discard()
	}
	log.Debug("Dataset store opened", "db_path", path)

	return &DatasetStore{db: db, log: log}, nil
}

// Close closes the database.
func (s *DatasetStore) Close() error {
	return s.db.Close()
}

// Save replaces table with the rows of ds, in order.
func (s *DatasetStore) Save(ctx context.Context, table string, ds *dataset.Dataset) error {
	if err := validateTable(table); err != nil {
		return err
	}
	if err := ds.Validate(); err != nil {
		return err
	}
	for _, l := range ds.Labels {
		if l == idColumn || l == messageColumn {
			return errors.SchemaError(fmt.Sprintf("label %q collides with a reserved column", l))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(table)); err != nil {
		return errors.StorageError("failed to drop table", err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(table, ds.Labels)); err != nil {
		return errors.StorageError("failed to create table", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(table, ds.Labels))
	if err != nil {
		return errors.StorageError("failed to prepare insert", err)
	}
	defer stmt.Close()

	args := make([]any, 2+len(ds.Labels))
	for _, r := range ds.Rows {
		args[0] = r.ID
		args[1] = r.Message
		for j, v := range r.Values {
			args[2+j] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.StorageError(fmt.Sprintf("failed to insert row %d", r.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError("failed to commit dataset", err)
	}

	s.log.Info("Dataset saved",
		"table", table,
		logger.KeySamples, len(ds.Rows),
		logger.KeyTargets, len(ds.Labels),
	)
	return nil
}

// Load reads table back into a dataset. Every column other than id and
// message is a label column, in table order.
func (s *DatasetStore) Load(ctx context.Context, table string) (*dataset.Dataset, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	exists, err := s.HasTable(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NotFoundError(fmt.Sprintf("table %s", table))
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quote(table)+" ORDER BY rowid")
	if err != nil {
		return nil, errors.StorageError("failed to query dataset", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.StorageError("failed to read columns", err)
	}

	idIdx, msgIdx := -1, -1
	var labels []string
	var labelIdx []int
	for i, c := range cols {
		switch c {
		case idColumn:
			idIdx = i
		case messageColumn:
			msgIdx = i
		default:
			labels = append(labels, c)
			labelIdx = append(labelIdx, i)
		}
	}
	if idIdx == -1 || msgIdx == -1 {
		return nil, errors.SchemaError(fmt.Sprintf("table %s must have id and message columns", table))
	}
	if len(labels) == 0 {
		return nil, errors.SchemaError(fmt.Sprintf("table %s has no label columns", table))
	}

	ds := &dataset.Dataset{Labels: labels}

	var id int64
	var msg string
	values := make([]int64, len(labels))
	dest := make([]any, len(cols))
	dest[idIdx] = &id
	dest[msgIdx] = &msg
	for k, i := range labelIdx {
		dest[i] = &values[k]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.StorageError("failed to scan row", err)
		}
		row := dataset.Row{ID: id, Message: msg, Values: make([]int, len(labels))}
		for k, v := range values {
			row.Values[k] = int(v)
		}
		ds.Rows = append(ds.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("failed to iterate rows", err)
	}

	if len(ds.Rows) == 0 {
		return nil, errors.EmptyInputError(fmt.Sprintf("table %s is empty", table))
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	s.log.Debug("Dataset loaded", "table", table, logger.KeySamples, len(ds.Rows))
	return ds, nil
}

// HasTable reports whether table exists.
func (s *DatasetStore) HasTable(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, errors.StorageError("failed to look up table", err)
	}
	return n > 0, nil
}

func validateTable(table string) error {
	if strings.TrimSpace(table) == "" {
		return errors.ValidationError("table name is required")
	}
	return nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func createTableSQL(table string, labels []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(quote(table))
	b.WriteString(" (id INTEGER NOT NULL, message TEXT NOT NULL")
	for _, l := range labels {
		b.WriteString(", ")
		b.WriteString(quote(l))
		b.WriteString(" INTEGER NOT NULL")
	}
	b.WriteString(")")
	return b.String()
}

func insertSQL(table string, labels []string) string {
	cols := make([]string, 0, 2+len(labels))
	cols = append(cols, idColumn, messageColumn)
	for _, l := range labels {
		cols = append(cols, quote(l))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(cols, ", "), marks)
}
