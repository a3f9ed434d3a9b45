// Package historical turns raw market data into a date-aligned table of
// numeric columns (one per ticker plus economic series such as CPI).
package historical

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// DateLayout is the day resolution used for every series.
const DateLayout = "2006-01-02"

// ErrUnknownColumn is returned when a requested column is not in the table.
var ErrUnknownColumn = errors.New("unknown column")

// Table is a set of named columns sharing one ascending date index.
type Table struct {
	dates []time.Time
	names []string
	index map[string]int
	data  *mat.Dense
}

// NewTable builds a table from a dates x columns matrix. Dates must be strictly
// ascending.
func NewTable(dates []time.Time, names []string, data *mat.Dense) (*Table, error) {
	r, c := data.Dims()
	if r != len(dates) || c != len(names) {
		return nil, fmt.Errorf("table shape %dx%d does not match %d dates and %d columns", r, c, len(dates), len(names))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("dates not ascending at %s", dates[i].Format(DateLayout))
		}
	}
	index := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := index[n]; dup {
			return nil, fmt.Errorf("duplicate column %q", n)
		}
		index[n] = i
	}
	return &Table{
		dates: append([]time.Time(nil), dates...),
		names: append([]string(nil), names...),
		index: index,
		data:  data,
	}, nil
}

// FromColumns builds a table from equally long column slices.
func FromColumns(dates []time.Time, columns map[string][]float64) (*Table, error) {
	names := make([]string, 0, len(columns))
	for n := range columns {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(dates) == 0 || len(names) == 0 {
		return nil, errors.New("table is empty")
	}
	data := mat.NewDense(len(dates), len(names), nil)
	for j, n := range names {
		col := columns[n]
		if len(col) != len(dates) {
			return nil, fmt.Errorf("column %q has %d values for %d dates", n, len(col), len(dates))
		}
		data.SetCol(j, col)
	}
	return NewTable(dates, names, data)
}

// Len is the number of dates.
func (t *Table) Len() int { return len(t.dates) }

// Dates returns the date index.
func (t *Table) Dates() []time.Time { return t.dates }

// Names returns the column names in table order.
func (t *Table) Names() []string { return t.names }

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	return mat.Col(nil, j, t.data), nil
}

// Select returns the named columns, in the given order, as a dates x len(names)
// matrix.
func (t *Table) Select(names ...string) (*mat.Dense, error) {
	if len(names) == 0 {
		return nil, errors.New("no columns selected")
	}
	out := mat.NewDense(len(t.dates), len(names), nil)
	col := make([]float64, len(t.dates))
	for j, n := range names {
		src, ok := t.index[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, n)
		}
		mat.Col(col, src, t.data)
		out.SetCol(j, col)
	}
	return out, nil
}

// Filter keeps rows with from <= date <= to. A zero bound is open.
func (t *Table) Filter(from, to time.Time) (*Table, error) {
	var keep []int
	for i, d := range t.dates {
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && d.After(to) {
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("no rows between %s and %s", from.Format(DateLayout), to.Format(DateLayout))
	}
	dates := make([]time.Time, len(keep))
	data := mat.NewDense(len(keep), len(t.names), nil)
	for i, k := range keep {
		dates[i] = t.dates[k]
		data.SetRow(i, t.data.RawRowView(k))
	}
	return NewTable(dates, t.names, data)
}

// Span returns the first and last dates.
func (t *Table) Span() (first, last time.Time) {
	return t.dates[0], t.dates[len(t.dates)-1]
}

// Join combines tables on the dates they all share. Column names must be
// unique across tables.
func Join(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, errors.New("nothing to join")
	}

	common := make(map[time.Time]int)
	for _, t := range tables {
		for _, d := range t.dates {
			common[d]++
		}
	}
	var dates []time.Time
	for d, n := range common {
		if n == len(tables) {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return nil, errors.New("tables share no dates")
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var names []string
	for _, t := range tables {
		names = append(names, t.names...)
	}
	data := mat.NewDense(len(dates), len(names), nil)
	offset := 0
	for _, t := range tables {
		rows := make(map[time.Time]int, len(t.dates))
		for i, d := range t.dates {
			rows[d] = i
		}
		for i, d := range dates {
			src := t.data.RawRowView(rows[d])
			for j := range t.names {
				data.Set(i, offset+j, src[j])
			}
		}
		offset += len(t.names)
	}
	return NewTable(dates, names, data)
}
