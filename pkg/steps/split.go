package steps

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/export"
	"github.com/systemstart/guidedstats/pkg/stats"
)

// Output names of a train/test split.
const (
	OutputXTrain = "XTrain"
	OutputXTest  = "XTest"
	OutputYTrain = "yTrain"
	OutputYTest  = "yTest"
)

// TrainTestSplitStep partitions X and Y into aligned training and test rows.
type TrainTestSplitStep struct {
	*Base
}

// NewTrainTestSplitStep creates a TrainTestSplitStep. trainSize and seed from
// the template are kept as fixed config.
func NewTrainTestSplitStep(tpl api.StepTemplate) (Step, error) {
	cfg := tpl.StepConfig
	initial := api.Config{}
	if cfg.TrainSize != nil {
		initial["trainSize"] = *cfg.TrainSize
	}
	if cfg.Seed != nil {
		initial["seed"] = *cfg.Seed
	}
	b, err := newBase(tpl, "Train Test Split", []string{"X", "Y"},
		[]string{OutputXTrain, OutputXTest, OutputYTrain, OutputYTest}, initial)
	if err != nil {
		return nil, err
	}
	b.UserKeys = []string{"trainSize", "seed"}
	return &TrainTestSplitStep{Base: b}, nil
}

// Forward splits right away when trainSize is fixed by the template.
func (s *TrainTestSplitStep) Forward(inputs Values) error {
	s.Inputs = inputs
	if _, ok := s.initial.Float("trainSize"); ok {
		return s.report(s.split())
	}
	return nil
}

// OnConfigChange splits when trainSize or seed changes.
func (s *TrainTestSplitStep) OnConfigChange(old, new api.Config) error {
	if !s.changed(old, new, "trainSize", "seed") {
		return nil
	}
	return s.report(s.split())
}

// Execute splits with the current config.
func (s *TrainTestSplitStep) Execute() error { return s.report(s.split()) }

func (s *TrainTestSplitStep) split() error {
	trainSize, ok := s.Config.Float("trainSize")
	if !ok || s.Inputs == nil {
		return nil
	}
	if trainSize <= 0 || trainSize >= 1 {
		return fmt.Errorf("%w: trainSize must be between 0 and 1, got %g", stats.ErrInvalidData, trainSize)
	}
	x, err := s.frameInput(0)
	if err != nil {
		return err
	}
	y, err := s.frameInput(1)
	if err != nil {
		return err
	}
	if x.Len() != y.Len() {
		return fmt.Errorf("%w: X has %d rows but Y has %d", stats.ErrInvalidData, x.Len(), y.Len())
	}

	rng := s.host.Rand()
	if seed, ok := s.Config.Float("seed"); ok {
		rng = rand.New(rand.NewPCG(uint64(int64(seed)), 0))
	}
	perm := rng.Perm(x.Len())
	nTrain := int(math.Floor(float64(x.Len()) * trainSize))
	train, test := perm[:nTrain], perm[nTrain:]

	names := []string{OutputXTrain, OutputXTest, OutputYTrain, OutputYTest}
	if len(s.OutputNames) == len(names) {
		names = s.OutputNames
	}
	return s.complete(Values{
		names[0]: x.Take(train),
		names[1]: x.Take(test),
		names[2]: y.Take(train),
		names[3]: y.Take(test),
	})
}

// Export renders the split code.
func (s *TrainTestSplitStep) Export() (string, error) {
	trainSize, _ := s.Config.Float("trainSize")
	data := map[string]any{
		"stepName":  s.Name,
		"x":         s.InputNames[0],
		"y":         s.InputNames[1],
		"trainSize": trainSize,
	}
	if seed, ok := s.Config.Float("seed"); ok {
		data["seed"] = int64(seed)
	}
	return export.Render(s.Type, data)
}
