package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ReadCSV parses a CSV document with a header row. A column whose non-empty
// cells all parse as numbers becomes numeric; empty numeric cells are NaN.
func ReadCSV(r io.Reader) (*Frame, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no header row")
	}

	header := records[0]
	rows := records[1:]
	cols := make([]Series, len(header))
	for j, name := range header {
		raw := make([]string, len(rows))
		for i, row := range rows {
			raw[i] = strings.TrimSpace(row[j])
		}
		cols[j] = inferSeries(strings.TrimSpace(name), raw)
	}
	return New(nil, cols...)
}

// ReadCSVFile reads a CSV file with ReadCSV.
func ReadCSVFile(filename string) (*Frame, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	df, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return df, nil
}

func inferSeries(name string, raw []string) Series {
	values := make([]float64, len(raw))
	for i, s := range raw {
		if s == "" {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return StringSeries(name, raw)
		}
		values[i] = v
	}
	return FloatSeries(name, values)
}

// WriteCSV writes the frame with a header row. Row labels are not written.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns()); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	row := make([]string, len(f.cols))
	for i := range f.index {
		for j, c := range f.cols {
			row[j] = c.Text(i)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
