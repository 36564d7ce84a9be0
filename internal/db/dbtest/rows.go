// Package dbtest provides in-memory stand-ins for pgx connections so the pool and
// the event store can be exercised without a database server.
package dbtest

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Rows is a canned result set implementing pgx.Rows. Values are scanned by
// assignment; nil scans into pointer destinations as NULL.
type Rows struct {
	data   [][]any
	pos    int
	err    error
	closed bool
}

var _ pgx.Rows = (*Rows)(nil)

// NewRows returns a result set holding the given rows.
func NewRows(rows ...[]any) *Rows {
	return &Rows{data: rows}
}

// WithErr makes Err report err once iteration is over.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

// Closed reports whether Close was called or the rows were exhausted.
func (r *Rows) Closed() bool { return r.closed }

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Err() error {
	if r.pos < len(r.data) && !r.closed {
		return nil
	}
	return r.err
}

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.data)))
}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *Rows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		r.closed = true
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos == 0 || r.pos > len(r.data) {
		return errors.New("dbtest: Scan called without a current row")
	}
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("dbtest: row has %d values, scanned into %d destinations", len(row), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], row[i]); err != nil {
			return fmt.Errorf("dbtest: column %d: %w", i, err)
		}
	}
	return nil
}

func (r *Rows) Values() ([]any, error) {
	if r.pos == 0 || r.pos > len(r.data) {
		return nil, errors.New("dbtest: no current row")
	}
	return r.data[r.pos-1], nil
}

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }

// Row adapts Rows to pgx.Row the way pgx does: the first row is scanned and
// pgx.ErrNoRows is returned when there is none.
type Row struct {
	rows *Rows
	err  error
}

func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

func assign(dest, src any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer, got %T", dest)
	}
	target := dv.Elem()

	if src == nil {
		switch target.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
			target.Set(reflect.Zero(target.Type()))
			return nil
		}
		return fmt.Errorf("cannot scan NULL into %s", target.Type())
	}

	sv := reflect.ValueOf(src)
	if target.Kind() == reflect.Pointer && !sv.Type().AssignableTo(target.Type()) {
		elem := reflect.New(target.Type().Elem())
		if err := convertInto(elem.Elem(), sv); err != nil {
			return err
		}
		target.Set(elem)
		return nil
	}
	return convertInto(target, sv)
}

func convertInto(target, sv reflect.Value) error {
	if sv.Type().AssignableTo(target.Type()) {
		target.Set(sv)
		return nil
	}
	if isNumeric(sv.Kind()) && isNumeric(target.Kind()) {
		target.Set(sv.Convert(target.Type()))
		return nil
	}
	return fmt.Errorf("cannot scan %s into %s", sv.Type(), target.Type())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
