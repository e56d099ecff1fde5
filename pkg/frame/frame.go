package frame

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
)

var (
	// ErrColumnNotFound is returned when a named column does not exist.
	ErrColumnNotFound = errors.New("column not found")
	// ErrNotNumeric is returned when numbers are requested from a text column.
	ErrNotNumeric = errors.New("column is not numeric")
)

// Kind is the value type of a column.
type Kind int

const (
	Float Kind = iota
	String
)

func (k Kind) String() string {
	if k == Float {
		return "float"
	}
	return "string"
}

// Series is one named, typed column. Exactly one of Floats or Strings is
// populated depending on Kind.
type Series struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// FloatSeries builds a numeric column.
func FloatSeries(name string, values []float64) Series {
	return Series{Name: name, Kind: Float, Floats: values}
}

// StringSeries builds a categorical column.
func StringSeries(name string, values []string) Series {
	return Series{Name: name, Kind: String, Strings: values}
}

// Len returns the number of values in the series.
func (s Series) Len() int {
	if s.Kind == Float {
		return len(s.Floats)
	}
	return len(s.Strings)
}

// Text returns the i-th value formatted as a string.
func (s Series) Text(i int) string {
	if s.Kind == Float {
		if math.IsNaN(s.Floats[i]) {
			return ""
		}
		return strconv.FormatFloat(s.Floats[i], 'g', -1, 64)
	}
	return s.Strings[i]
}

func (s Series) take(rows []int) Series {
	out := Series{Name: s.Name, Kind: s.Kind}
	if s.Kind == Float {
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = s.Floats[r]
		}
		return out
	}
	out.Strings = make([]string, len(rows))
	for i, r := range rows {
		out.Strings[i] = s.Strings[r]
	}
	return out
}

// Frame is an immutable table of equally long columns with integer row labels.
// Row labels survive Select, Take and split operations so that subsets taken
// from the same source can be aligned.
type Frame struct {
	index []int
	cols  []Series
}

// New builds a frame. A nil index labels rows 0..n-1.
func New(index []int, cols ...Series) (*Frame, error) {
	n := len(index)
	if index == nil && len(cols) > 0 {
		n = cols[0].Len()
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c.Len() != n {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), n)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	if index == nil {
		index = make([]int, n)
		for i := range index {
			index[i] = i
		}
	}
	return &Frame{index: slices.Clone(index), cols: slices.Clone(cols)}, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Index returns a copy of the row labels.
func (f *Frame) Index() []int { return slices.Clone(f.index) }

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.cols) }

// Column returns the named column.
func (f *Frame) Column(name string) (Series, error) {
	for _, c := range f.cols {
		if c.Name == name {
			return c, nil
		}
	}
	return Series{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// At returns the i-th column.
func (f *Frame) At(i int) Series { return f.cols[i] }

// IsNumeric reports whether the named column holds numbers.
func (f *Frame) IsNumeric(name string) bool {
	c, err := f.Column(name)
	return err == nil && c.Kind == Float
}

// Floats returns the values of a numeric column.
func (f *Frame) Floats(name string) ([]float64, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != Float {
		return nil, fmt.Errorf("%w: %q", ErrNotNumeric, name)
	}
	return c.Floats, nil
}

// Matrix returns every column as float slices; all columns must be numeric.
func (f *Frame) Matrix() ([][]float64, error) {
	out := make([][]float64, len(f.cols))
	for i, c := range f.cols {
		if c.Kind != Float {
			return nil, fmt.Errorf("%w: %q", ErrNotNumeric, c.Name)
		}
		out[i] = c.Floats
	}
	return out, nil
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]Series, 0, len(names))
	for _, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return New(f.index, cols...)
}

// Take returns the rows at the given positions.
func (f *Frame) Take(rows []int) *Frame {
	index := make([]int, len(rows))
	for i, r := range rows {
		index[i] = f.index[r]
	}
	cols := make([]Series, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.take(rows)
	}
	return &Frame{index: index, cols: cols}
}

// Loc returns the rows carrying the given labels, in that order.
func (f *Frame) Loc(labels []int) (*Frame, error) {
	pos := make(map[int]int, len(f.index))
	for i, l := range f.index {
		pos[l] = i
	}
	rows := make([]int, 0, len(labels))
	for _, l := range labels {
		p, ok := pos[l]
		if !ok {
			return nil, fmt.Errorf("row label %d not found", l)
		}
		rows = append(rows, p)
	}
	return f.Take(rows), nil
}

// Subset keeps the rows whose label is in labels, preserving the order of f.
func (f *Frame) Subset(labels []int) *Frame {
	keep := make(map[int]bool, len(labels))
	for _, l := range labels {
		keep[l] = true
	}
	var rows []int
	for i, l := range f.index {
		if keep[l] {
			rows = append(rows, i)
		}
	}
	return f.Take(rows)
}

// Where returns the row labels whose value in column equals value.
func (f *Frame) Where(column, value string) ([]int, error) {
	c, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	var labels []int
	for i := range f.index {
		if c.Text(i) == value {
			labels = append(labels, f.index[i])
		}
	}
	return labels, nil
}

// Unique returns the distinct values of a column in first-seen order.
func (f *Frame) Unique(column string) ([]string, error) {
	c, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for i := 0; i < c.Len(); i++ {
		v := c.Text(i)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

// WithColumn returns a frame where s replaces the column of the same name, or
// is appended when no such column exists.
func (f *Frame) WithColumn(s Series) (*Frame, error) {
	if s.Len() != f.Len() {
		return nil, fmt.Errorf("column %q has %d rows, expected %d", s.Name, s.Len(), f.Len())
	}
	cols := slices.Clone(f.cols)
	for i, c := range cols {
		if c.Name == s.Name {
			cols[i] = s
			return &Frame{index: f.index, cols: cols}, nil
		}
	}
	return &Frame{index: f.index, cols: append(cols, s)}, nil
}

// Merge overlays every column of other onto f. Both frames must share labels.
func (f *Frame) Merge(other *Frame) (*Frame, error) {
	aligned, err := other.Loc(f.index)
	if err != nil {
		return nil, fmt.Errorf("aligning frames: %w", err)
	}
	out := f
	for _, c := range aligned.cols {
		if out, err = out.WithColumn(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Equal reports whether both frames have identical labels, columns and values.
// NaN equals NaN.
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	if !slices.Equal(f.index, other.index) || len(f.cols) != len(other.cols) {
		return false
	}
	for i, c := range f.cols {
		o := other.cols[i]
		if c.Name != o.Name || c.Kind != o.Kind {
			return false
		}
		if c.Kind == String {
			if !slices.Equal(c.Strings, o.Strings) {
				return false
			}
			continue
		}
		eq := slices.EqualFunc(c.Floats, o.Floats, func(a, b float64) bool {
			return a == b || (math.IsNaN(a) && math.IsNaN(b))
		})
		if !eq {
			return false
		}
	}
	return true
}
