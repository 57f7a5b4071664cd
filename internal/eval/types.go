package eval

// #region eval-config
// EvalConfig holds the pass thresholds of an evaluation pass.
type EvalConfig struct {
	MinAccuracy    float64 `yaml:"min_accuracy" json:"min_accuracy" validate:"gte=0,lte=1"`           // fail if crisp accuracy is below this
	MaxPiError     float64 `yaml:"max_pi_error" json:"max_pi_error" validate:"gte=0"`                 // fail if the possibility error exceeds this
	MaxNoMatchRate float64 `yaml:"max_no_match_rate" json:"max_no_match_rate" validate:"gte=0,lte=1"` // fail if more instances than this fraction went unmatched
}

// DefaultEvalConfig returns thresholds that only report, never fail.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinAccuracy:    0,
		MaxPiError:     0, // 0 disables the check
		MaxNoMatchRate: 1,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single evaluation figure.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of an evaluation pass.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string

	Instances     int
	Correct       int
	NoMatch       int
	Accuracy      float64
	WeightedError float64
	PiError       float64
}

// Metric returns the named metric.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
