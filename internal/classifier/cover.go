package classifier

import (
	"log/slog"
	"slices"

	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

// #region coverer
// Coverer creates classifiers centred on uncovered states, with the state's
// target as initial prediction.
type Coverer struct {
	params Params
	logger *slog.Logger
}

// NewCoverer validates params and returns a Coverer.
func NewCoverer(params Params, logger *slog.Logger) (*Coverer, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coverer{params: params, logger: logger.With("component", "covering")}, nil
}

// Params returns the constants given to new classifiers.
func (c *Coverer) Params() Params { return c.params }

// Cover implements lcs.Coverer.
func (c *Coverer) Cover(s lcs.State, iteration int) lcs.Classifier {
	x := s.Input()
	spread := make([]float64, len(x))
	for i := range spread {
		spread[i] = c.params.InitSpread
	}
	cl, err := New(c.params, x, spread, slices.Clone(s.Output()), iteration)
	if err != nil {
		// only an empty input can fail here
		panic(err)
	}
	c.logger.Debug("covered state", "id", cl.ID(), "iteration", iteration)
	return cl
}

// #endregion coverer
