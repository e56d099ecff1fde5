package steps

import (
	"math/rand/v2"
	"testing"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/stats"
)

type fakeHost struct {
	data     *frame.Frame
	current  *frame.Frame
	model    stats.Model
	report   string
	warnings []string
	moved    []int
	finished []int
	rng      *rand.Rand
}

func newFakeHost(data *frame.Frame) *fakeHost {
	return &fakeHost{data: data, rng: rand.New(rand.NewPCG(1, 2))}
}

func (h *fakeHost) MoveToNextStep(s Step) error {
	h.moved = append(h.moved, s.State().ID)
	return nil
}

func (h *fakeHost) Finish(s Step) error {
	h.finished = append(h.finished, s.State().ID)
	return nil
}

func (h *fakeHost) Dataset() *frame.Frame { return h.data }
func (h *fakeHost) DatasetName() string { return "houses" }
func (h *fakeHost) CurrentFrame() *frame.Frame { return h.current }
func (h *fakeHost) SetCurrentFrame(f *frame.Frame) { h.current = f }
func (h *fakeHost) SetCurrentModel(m stats.Model) { h.model = m }
func (h *fakeHost) SetReport(r string) { h.report = r }
func (h *fakeHost) Warn(_ Step, msg string) { h.warnings = append(h.warnings, msg) }
func (h *fakeHost) ConfigChanged(Step) {}
func (h *fakeHost) Rand() *rand.Rand { return h.rng }

func newAttached(t *testing.T, h Host, tpl api.StepTemplate) Step {
	t.Helper()
	s, err := NewStep(tpl)
	if err != nil {
		t.Fatalf("NewStep(%s) error = %v", tpl.StepType, err)
	}
	s.State().Attach(h, s)
	return s
}

// setConfig replaces the config the way the workflow does.
func setConfig(t *testing.T, s Step, key string, value any) {
	t.Helper()
	next := s.State().Config.Clone()
	next[key] = value
	old, err := s.State().SetConfig(next)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.OnConfigChange(old, s.State().Config); err != nil {
		t.Fatalf("OnConfigChange(%s) error = %v", key, err)
	}
}

func houses(t *testing.T) *frame.Frame {
	t.Helper()
	n := 40
	price := make([]float64, n)
	rooms := make([]float64, n)
	area := make([]float64, n)
	city := make([]string, n)
	for i := range n {
		rooms[i] = float64(1 + i%5)
		area[i] = float64(30 + 7*i)
		price[i] = 50 + 20*rooms[i] + 1.5*area[i] + float64(i%3)
		city[i] = []string{"north", "south"}[i%2]
	}
	f, err := frame.New(nil,
		frame.FloatSeries("price", price),
		frame.FloatSeries("rooms", rooms),
		frame.FloatSeries("area", area),
		frame.StringSeries("city", city),
	)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func column(t *testing.T, f *frame.Frame, name string) *frame.Frame {
	t.Helper()
	sub, err := f.Select(name)
	if err != nil {
		t.Fatal(err)
	}
	return sub
}
