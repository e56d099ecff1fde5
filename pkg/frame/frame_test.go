package frame

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
)

func sample(t *testing.T) *Frame {
	t.Helper()
	f, err := New(nil,
		FloatSeries("a", []float64{1, 2, 3, 4}),
		FloatSeries("b", []float64{10, 20, 30, 40}),
		StringSeries("g", []string{"x", "y", "x", "y"}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestNew_LengthMismatch(t *testing.T) {
	_, err := New(nil, FloatSeries("a", []float64{1}), FloatSeries("b", []float64{1, 2}))
	if err == nil || !strings.Contains(err.Error(), "expected 1") {
		t.Fatalf("expected length error, got %v", err)
	}
}

func TestSelectAndColumnNotFound(t *testing.T) {
	f := sample(t)
	sub, err := f.Select("b")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sub.Columns(), []string{"b"}) || sub.Len() != 4 {
		t.Fatalf("unexpected subset %v", sub.Columns())
	}
	if _, err := f.Select("nope"); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestTakeKeepsLabels(t *testing.T) {
	f := sample(t).Take([]int{3, 1})
	if !slices.Equal(f.Index(), []int{3, 1}) {
		t.Fatalf("index = %v", f.Index())
	}
	b, _ := f.Floats("b")
	if !slices.Equal(b, []float64{40, 20}) {
		t.Fatalf("b = %v", b)
	}

	back, err := sample(t).Loc([]int{1, 3})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := back.Floats("a")
	if !slices.Equal(a, []float64{2, 4}) {
		t.Fatalf("a = %v", a)
	}
}

func TestWhereAndUnique(t *testing.T) {
	f := sample(t)
	labels, err := f.Where("g", "y")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(labels, []int{1, 3}) {
		t.Fatalf("labels = %v", labels)
	}
	u, _ := f.Unique("g")
	if !slices.Equal(u, []string{"x", "y"}) {
		t.Fatalf("unique = %v", u)
	}
}

func TestWithColumnAndMerge(t *testing.T) {
	f := sample(t)
	g, err := f.WithColumn(FloatSeries("a", []float64{0, 0, 0, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if a, _ := g.Floats("a"); a[0] != 0 || g.Width() != 3 {
		t.Fatal("expected column a replaced in place")
	}
	if a, _ := f.Floats("a"); a[0] != 1 {
		t.Fatal("original frame mutated")
	}

	part := f.Take([]int{2, 0, 1, 3})
	part, _ = part.Select("b")
	part, _ = part.WithColumn(FloatSeries("b", []float64{3, 1, 2, 4}))
	merged, err := f.Merge(part)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := merged.Floats("b"); !slices.Equal(b, []float64{1, 2, 3, 4}) {
		t.Fatalf("merge did not align by label: %v", b)
	}
}

func TestEqual(t *testing.T) {
	a, _ := New(nil, FloatSeries("v", []float64{1, math.NaN()}))
	b, _ := New(nil, FloatSeries("v", []float64{1, math.NaN()}))
	if !a.Equal(b) {
		t.Fatal("expected NaN-aware equality")
	}
	c, _ := New([]int{5, 6}, FloatSeries("v", []float64{1, math.NaN()}))
	if a.Equal(c) {
		t.Fatal("frames with different labels must differ")
	}
}

func TestCSVRoundTrip(t *testing.T) {
	in := "price,rooms,city\n100,3,a\n200,,b\n"
	f, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if !f.IsNumeric("price") || !f.IsNumeric("rooms") || f.IsNumeric("city") {
		t.Fatal("unexpected kind inference")
	}
	rooms, _ := f.Floats("rooms")
	if !math.IsNaN(rooms[1]) {
		t.Fatalf("expected NaN for empty cell, got %v", rooms[1])
	}

	var buf bytes.Buffer
	if err := f.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != in {
		t.Fatalf("round trip mismatch:\n%s", buf.String())
	}
}

func TestSubsetKeepsFrameOrder(t *testing.T) {
	f := sample(t).Take([]int{3, 2, 1, 0})
	sub := f.Subset([]int{0, 3, 7})
	if !slices.Equal(sub.Index(), []int{3, 0}) {
		t.Fatalf("index = %v", sub.Index())
	}
	if _, err := f.Floats("g"); !errors.Is(err, ErrNotNumeric) {
		t.Fatalf("expected ErrNotNumeric, got %v", err)
	}
}
