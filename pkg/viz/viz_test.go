package viz

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
)

func TestBoxplot(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 1000, -500}
	b := Boxplot("price", x)
	if b.Name != "price" {
		t.Fatalf("name = %q", b.Name)
	}
	if len(b.Outliers) != 2 || b.Outliers[0] != 1000 || b.Outliers[1] != -500 {
		t.Fatalf("outliers = %v", b.Outliers)
	}
	if !(b.Lower < b.Q1 && b.Q1 <= b.Median && b.Median <= b.Q3 && b.Q3 < b.Upper) {
		t.Fatalf("unordered box %+v", b)
	}
}

func TestBoxplotCapsOutliers(t *testing.T) {
	x := make([]float64, 0, 95)
	for i := 0; i < 80; i++ {
		x = append(x, float64(i%4))
	}
	for i := 0; i < 15; i++ {
		x = append(x, float64(1000+i))
	}
	b := Boxplot("x", x)
	if len(b.Outliers) != MaxOutliers || b.Outliers[0] != 1014 {
		t.Fatalf("expected the %d largest outliers, got %v", MaxOutliers, b.Outliers)
	}
}

func TestMultiBoxplotNames(t *testing.T) {
	boxes := MultiBoxplot([]float64{1, 2, 3}, []float64{4, 5, 6})
	if boxes[0].Name != "group1" || boxes[1].Name != "group2" {
		t.Fatalf("names = %q %q", boxes[0].Name, boxes[1].Name)
	}
}

func TestResidualsSampling(t *testing.T) {
	pred := make([]float64, 250)
	actual := make([]float64, 250)
	for i := range pred {
		pred[i] = float64(i)
		actual[i] = float64(i) - 1
	}
	rng := rand.New(rand.NewPCG(1, 2))
	pts := Residuals(pred, actual, "test", rng)
	if len(pts) != MaxPoints {
		t.Fatalf("expected %d points, got %d", MaxPoints, len(pts))
	}
	for _, p := range pts {
		if p.Y != 1 || p.Group != "test" {
			t.Fatalf("unexpected point %+v", p)
		}
	}
}

func TestNormalityIsSerializable(t *testing.T) {
	pts := Normality([]float64{1, 2, 3, 4, 5}, rand.New(rand.NewPCG(3, 4)))
	if len(pts) != 10 {
		t.Fatalf("expected 10 points, got %d", len(pts))
	}
	if _, err := json.Marshal(Viz{VizType: TypeDensity, VizStats: pts}); err != nil {
		t.Fatal(err)
	}
}

func TestCorrelationHeatmap(t *testing.T) {
	cells := CorrelationHeatmap([]string{"a", "b"}, [][]float64{{1, 2, 3}, {3, 2, 1}})
	if len(cells) != 4 {
		t.Fatalf("expected 4 cells, got %d", len(cells))
	}
	if *cells[1].Value > -0.999 {
		t.Fatalf("expected a,b correlation -1, got %v", *cells[1].Value)
	}
	constant := CorrelationHeatmap([]string{"c"}, [][]float64{{1, 1, 1}})
	if constant[0].Value != nil {
		t.Fatal("expected nil for an undefined correlation")
	}
}
