// Package config loads the engine configuration from YAML, applies
// environment overrides and validates the result.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/prbf/go-engine/internal/classifier"
	"github.com/danielpatrickdp/prbf/go-engine/internal/eval"
	"github.com/danielpatrickdp/prbf/go-engine/internal/logging"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

var validate = validator.New()

// #region types

// Config is the full engine configuration.
type Config struct {
	Matching   MatchingConfig    `yaml:"matching" json:"matching"`
	Population PopulationConfig  `yaml:"population" json:"population"`
	Learning   LearningConfig    `yaml:"learning" json:"learning"`
	Classifier classifier.Params `yaml:"classifier" json:"classifier"`
	Eval       eval.EvalConfig   `yaml:"eval" json:"eval"`
	Data       DataConfig        `yaml:"data" json:"data"`
	Store      StoreConfig       `yaml:"store" json:"store"`
	Serve      ServeConfig       `yaml:"serve" json:"serve"`
	Log        logging.Config    `yaml:"log" json:"log"`
}

// MatchingConfig selects the matching strategy.
type MatchingConfig struct {
	Closest        bool `yaml:"closest" json:"closest"`
	ClosestK       int  `yaml:"closest_k" json:"closest_k" validate:"gte=1"`
	Multithreading bool `yaml:"multithreading" json:"multithreading"`
	// ThreadingThreshold below zero enables online calibration.
	ThreadingThreshold int `yaml:"threading_threshold" json:"threading_threshold"`
	// Workers is the parallel participant count; 0 means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers" validate:"gte=0"`
}

// PopulationConfig bounds the population.
type PopulationConfig struct {
	MaxSize int `yaml:"max_size" json:"max_size" validate:"gte=1"`
}

// LearningConfig drives the training loop.
type LearningConfig struct {
	MaxIterations int `yaml:"max_iterations" json:"max_iterations" validate:"gte=1"`
	// StartCompaction is the fraction of MaxIterations after which
	// compaction starts.
	StartCompaction float64 `yaml:"start_compaction" json:"start_compaction" validate:"gte=0,lte=1"`
	// CompactionType: 0 none, 1 closest matching, 2 population compaction,
	// 3 both.
	CompactionType       int     `yaml:"compaction_type" json:"compaction_type" validate:"oneof=0 1 2 3"`
	ConsistencyThreshold float64 `yaml:"consistency_threshold" json:"consistency_threshold" validate:"gte=0,lte=1"`
	// SnapshotEvery persists the population every n iterations; 0 only at the end.
	SnapshotEvery int `yaml:"snapshot_every" json:"snapshot_every" validate:"gte=0"`
}

// DataConfig describes the instance files.
type DataConfig struct {
	InputSize  int    `yaml:"input_size" json:"input_size" validate:"gte=1"`
	OutputSize int    `yaml:"output_size" json:"output_size" validate:"gte=1"`
	TrainFile  string `yaml:"train_file" json:"train_file"`
	TestFile   string `yaml:"test_file" json:"test_file"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path" json:"path" validate:"required"`
}

// ServeConfig holds listen addresses for the serve command.
type ServeConfig struct {
	Addr        string `yaml:"addr" json:"addr" validate:"required"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// #endregion types

// #region defaults

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Matching: MatchingConfig{
			ClosestK:           20,
			Multithreading:     true,
			ThreadingThreshold: -1,
		},
		Population: PopulationConfig{MaxSize: 2000},
		Learning: LearningConfig{
			MaxIterations:        100000,
			StartCompaction:      0.9,
			ConsistencyThreshold: 0.1,
		},
		Classifier: classifier.DefaultParams(),
		Eval:       eval.DefaultEvalConfig(),
		Data:       DataConfig{InputSize: 1, OutputSize: 1},
		Store:      StoreConfig{Path: "prbf.db"},
		Serve:      ServeConfig{Addr: "localhost:50061", MetricsAddr: "localhost:9091"},
		Log:        logging.Config{Level: "info"},
	}
}

// #endregion defaults

// #region load

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Store.Path = envOr("PRBF_DB", cfg.Store.Path)
	cfg.Data.TrainFile = envOr("PRBF_TRAIN_FILE", cfg.Data.TrainFile)
	cfg.Data.TestFile = envOr("PRBF_TEST_FILE", cfg.Data.TestFile)
	cfg.Log.Level = strings.ToLower(envOr("PRBF_LOG_LEVEL", cfg.Log.Level))
	if v := os.Getenv("PRBF_MULTITHREADING"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: PRBF_MULTITHREADING: %w", ErrInvalid, err)
		}
		cfg.Matching.Multithreading = on
	}
	return nil
}

// Validate checks every field constraint.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// JSON returns the configuration as a JSON document for run records.
func (c Config) JSON() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

// #endregion load

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
