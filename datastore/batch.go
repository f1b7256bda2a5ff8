package datastore

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
)

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// insertBatcher accumulates rows for one table and flushes them as multi-row
// bulk inserts whenever the flush threshold is reached. This bounds the
// number of round trips on large imports without building one giant
// statement.
type insertBatcher struct {
	run     execer
	builder sq.StatementBuilderType
	table   string
	columns []string
	flushAt int
	rows    [][]interface{}
}

func newInsertBatcher(run execer, builder sq.StatementBuilderType, table string, columns []string, flushAt int) *insertBatcher {
	return &insertBatcher{
		run:     run,
		builder: builder,
		table:   table,
		columns: columns,
		flushAt: flushAt,
		rows:    make([][]interface{}, 0, flushAt),
	}
}

// Add queues one row, flushing if the batch is full. The number of values
// must match the batcher's columns.
func (b *insertBatcher) Add(values ...interface{}) error {
	b.rows = append(b.rows, values)
	if len(b.rows) >= b.flushAt {
		return b.Flush()
	}
	return nil
}

// Pending returns the number of queued rows not yet flushed.
func (b *insertBatcher) Pending() int {
	return len(b.rows)
}

// Flush writes any queued rows as a single multi-row insert.
func (b *insertBatcher) Flush() error {
	if len(b.rows) == 0 {
		return nil
	}

	ins := b.builder.Insert(b.table).Columns(b.columns...)
	for _, row := range b.rows {
		ins = ins.Values(row...)
	}
	query, args, err := ins.ToSql()
	if err != nil {
		return err
	}

	_, err = b.run.Exec(query, args...)
	b.rows = b.rows[:0]

	return err
}
