package classifier

import "fmt"

// #region params
// Params holds the learning constants shared by every classifier of a
// population.
type Params struct {
	Beta           float64 `yaml:"beta" json:"beta" validate:"gt=0,lte=1"`
	Epsilon0       float64 `yaml:"epsilon0" json:"epsilon0" validate:"gt=0"`
	Alpha          float64 `yaml:"alpha" json:"alpha" validate:"gt=0,lte=1"`
	Nu             float64 `yaml:"nu" json:"nu" validate:"gt=0"`
	MatchThreshold float64 `yaml:"match_threshold" json:"match_threshold" validate:"gt=0,lte=1"`
	InitSpread     float64 `yaml:"init_spread" json:"init_spread" validate:"gt=0"`
}

// DefaultParams returns the constants used for the reference experiments.
func DefaultParams() Params {
	return Params{
		Beta:           0.1,
		Epsilon0:       0.01,
		Alpha:          0.1,
		Nu:             5,
		MatchThreshold: 0.5,
		InitSpread:     0.25,
	}
}

func (p Params) validate() error {
	switch {
	case p.Beta <= 0 || p.Beta > 1:
		return fmt.Errorf("beta must be in (0,1], got %v", p.Beta)
	case p.Epsilon0 <= 0:
		return fmt.Errorf("epsilon0 must be positive, got %v", p.Epsilon0)
	case p.MatchThreshold <= 0 || p.MatchThreshold > 1:
		return fmt.Errorf("match threshold must be in (0,1], got %v", p.MatchThreshold)
	case p.InitSpread <= 0:
		return fmt.Errorf("init spread must be positive, got %v", p.InitSpread)
	}
	return nil
}

// #endregion params

// #region snapshot
// Snapshot is the persisted form of a classifier.
type Snapshot struct {
	ID         string    `json:"id"`
	Center     []float64 `json:"center"`
	Spread     []float64 `json:"spread"`
	Prediction []float64 `json:"prediction"`
	PredError  float64   `json:"pred_error"`
	Fitness    float64   `json:"fitness"`
	Accuracy   float64   `json:"accuracy"`
	Experience int       `json:"experience"`
	Numerosity int       `json:"numerosity"`
	SetSize    float64   `json:"set_size"`
	Timestamp  int       `json:"timestamp"`
}

// #endregion snapshot
