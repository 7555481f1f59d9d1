// Package stream holds the columnar batch of rows passed between extraction, convergence and load steps.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	om "github.com/cevaris/ordered_map"
)

// Rows is an ordered set of records sharing one column list.
// Values holds one slice per row, each the same length as Columns.
// Database NULLs are nil interfaces.
type Rows struct {
	Columns []string        `json:"columns"`
	Values  [][]interface{} `json:"values"`
}

// NewRows creates an empty batch with the given columns.
func NewRows(columns ...string) *Rows {
	return &Rows{
		Columns: append([]string(nil), columns...),
		Values:  make([][]interface{}, 0),
	}
}

// Len returns the number of rows, treating a nil batch as empty.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Append adds one row. The number of values must match the columns.
func (r *Rows) Append(values ...interface{}) error {
	if len(values) != len(r.Columns) {
		return fmt.Errorf("row has %v values but the stream has %v columns %v", len(values), len(r.Columns), r.Columns)
	}
	r.Values = append(r.Values, values)
	return nil
}

// MustAppend is Append for fixtures built in code, where a mismatch is a programming error.
func (r *Rows) MustAppend(values ...interface{}) *Rows {
	if err := r.Append(values...); err != nil {
		panic(err)
	}
	return r
}

// ColumnIndex returns the position of the named column (case insensitive).
func (r *Rows) ColumnIndex(name string) (int, bool) {
	for idx, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return idx, true
		}
	}
	return -1, false
}

// Column returns the values of the named column in row order.
func (r *Rows) Column(name string) ([]interface{}, error) {
	idx, ok := r.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("unexpected field %q does not exist in the stream (columns %v)", name, r.Columns)
	}
	retval := make([]interface{}, len(r.Values))
	for i, row := range r.Values {
		retval[i] = row[idx]
	}
	return retval, nil
}

// AddColumn appends a computed column to every row.
func (r *Rows) AddColumn(name string, fn func(row []interface{}) interface{}) error {
	if _, ok := r.ColumnIndex(name); ok {
		return fmt.Errorf("field %v exists in stream", name)
	}
	for i, row := range r.Values {
		r.Values[i] = append(row, fn(row))
	}
	r.Columns = append(r.Columns, name)
	return nil
}

// Record returns row i as an ordered map of column name to value.
func (r *Rows) Record(i int) *om.OrderedMap {
	o := om.NewOrderedMap()
	for idx, c := range r.Columns {
		o.Set(c, r.Values[i][idx])
	}
	return o
}

// GetJson returns the JSON representation of row i, keeping column order.
func (r *Rows) GetJson(i int) (string, error) {
	out := make([]string, len(r.Columns))
	for idx, c := range r.Columns {
		v, err := json.Marshal(r.Values[i][idx])
		if err != nil {
			return "", fmt.Errorf("error marshalling the value of key %q to JSON: %w", c, err)
		}
		out[idx] = fmt.Sprintf("%q: %s", c, string(v))
	}
	return fmt.Sprintf("{%v}", strings.Join(out, ", ")), nil
}

// Concat merges batches that share the same columns into a new batch.
// Nil and empty batches without columns are ignored.
func Concat(batches ...*Rows) (*Rows, error) {
	var retval *Rows
	for _, b := range batches {
		if b == nil || (len(b.Columns) == 0 && len(b.Values) == 0) {
			continue
		}
		if retval == nil {
			retval = NewRows(b.Columns...)
		} else if !sameColumns(retval.Columns, b.Columns) {
			return nil, fmt.Errorf("cannot concatenate streams with columns %v and %v", retval.Columns, b.Columns)
		}
		retval.Values = append(retval.Values, b.Values...)
	}
	if retval == nil {
		retval = NewRows()
	}
	return retval, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
