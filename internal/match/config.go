package match

import (
	"errors"
	"fmt"
	"math"
	"runtime"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid matcher configuration")

// ErrInvalidThreshold is returned when a call-time threshold is outside [0,1].
var ErrInvalidThreshold = errors.New("threshold must be within [0,1]")

const weightTolerance = 1e-6

// Weights are the per-algorithm multipliers of the overall score. They must sum
// to 1.
type Weights struct {
	Levenshtein float64 `yaml:"levenshtein" json:"levenshtein"`
	JaroWinkler float64 `yaml:"jaro_winkler" json:"jaro_winkler"`
	Jaccard     float64 `yaml:"jaccard" json:"jaccard"`
	Cosine      float64 `yaml:"cosine" json:"cosine"`
	Semantic    float64 `yaml:"semantic" json:"semantic"`
}

// DefaultWeights returns the standard blend: edit distance and Jaro-Winkler
// dominate, the semantic signal is a tie breaker.
func DefaultWeights() Weights {
	return Weights{
		Levenshtein: 0.25,
		JaroWinkler: 0.25,
		Jaccard:     0.20,
		Cosine:      0.15,
		Semantic:    0.15,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Levenshtein + w.JaroWinkler + w.Jaccard + w.Cosine + w.Semantic
}

// Apply returns the weighted sum of the component scores in s.
func (w Weights) Apply(s ScoreSet) float64 {
	return w.Levenshtein*s.Levenshtein +
		w.JaroWinkler*s.JaroWinkler +
		w.Jaccard*s.Jaccard +
		w.Cosine*s.Cosine +
		w.Semantic*s.Semantic
}

// Validate checks every weight is non-negative and that they sum to 1.
func (w Weights) Validate() error {
	var errs []error
	for _, named := range []struct {
		name  string
		value float64
	}{
		{"levenshtein", w.Levenshtein},
		{"jaro_winkler", w.JaroWinkler},
		{"jaccard", w.Jaccard},
		{"cosine", w.Cosine},
		{"semantic", w.Semantic},
	} {
		if math.IsNaN(named.value) || named.value < 0 {
			errs = append(errs, fmt.Errorf("%w: weight %s is %v", ErrInvalidConfig, named.name, named.value))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		errs = append(errs, fmt.Errorf("%w: weights sum to %.6f, want 1", ErrInvalidConfig, sum))
	}
	return errors.Join(errs...)
}

// Thresholds are the lower bounds of each category on the overall score.
type Thresholds struct {
	Exact  float64 `yaml:"exact" json:"exact"`
	High   float64 `yaml:"high" json:"high"`
	Medium float64 `yaml:"medium" json:"medium"`
	Low    float64 `yaml:"low" json:"low"`
}

// DefaultThresholds returns the standard category bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Exact:  1.0,
		High:   0.85,
		Medium: 0.65,
		Low:    0.40,
	}
}

// Validate requires 0 <= low < medium < high <= exact <= 1.
func (t Thresholds) Validate() error {
	var errs []error
	for _, named := range []struct {
		name  string
		value float64
	}{
		{"exact", t.Exact},
		{"high", t.High},
		{"medium", t.Medium},
		{"low", t.Low},
	} {
		if math.IsNaN(named.value) || named.value < 0 || named.value > 1 {
			errs = append(errs, fmt.Errorf("%w: threshold %s=%v outside [0,1]", ErrInvalidConfig, named.name, named.value))
		}
	}
	if !(t.Low < t.Medium && t.Medium < t.High && t.High <= t.Exact) {
		errs = append(errs, fmt.Errorf("%w: thresholds must satisfy low < medium < high <= exact (got %v/%v/%v/%v)",
			ErrInvalidConfig, t.Low, t.Medium, t.High, t.Exact))
	}
	return errors.Join(errs...)
}

// Config tunes an Engine. Performance options never change results.
type Config struct {
	Weights    Weights    `yaml:"weights" json:"weights"`
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`

	EnableCache       bool `yaml:"enable_cache" json:"enable_cache"`
	EnableParallel    bool `yaml:"enable_parallel" json:"enable_parallel"`
	MaxWorkers        int  `yaml:"max_workers" json:"max_workers"`
	ChunkSize         int  `yaml:"chunk_size" json:"chunk_size"`
	ParallelThreshold int  `yaml:"parallel_threshold" json:"parallel_threshold"`

	// TopK candidates are retained per source; the runner-up drives tie detection.
	TopK      int     `yaml:"top_k" json:"top_k"`
	TieMargin float64 `yaml:"tie_margin" json:"tie_margin"`

	IncludeUnmatched   bool `yaml:"include_unmatched" json:"include_unmatched"`
	FallbackToText     bool `yaml:"fallback_to_text" json:"fallback_to_text"`
	NormalizeCacheSize int  `yaml:"normalize_cache_size" json:"normalize_cache_size"`

	Debug bool `yaml:"debug" json:"debug"`
}

// DefaultConfig returns the recommended engine settings.
func DefaultConfig() Config {
	workers := runtime.NumCPU()
	if workers > 4 {
		workers = 4
	}
	return Config{
		Weights:            DefaultWeights(),
		Thresholds:         DefaultThresholds(),
		EnableCache:        true,
		EnableParallel:     true,
		MaxWorkers:         workers,
		ChunkSize:          1000,
		ParallelThreshold:  100,
		TopK:               3,
		TieMargin:          0.05,
		NormalizeCacheSize: 10000,
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	errs := []error{c.Weights.Validate(), c.Thresholds.Validate()}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("%w: max_workers must be >= 1, got %d", ErrInvalidConfig, c.MaxWorkers))
	}
	if c.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("%w: chunk_size must be >= 1, got %d", ErrInvalidConfig, c.ChunkSize))
	}
	if c.ParallelThreshold < 0 {
		errs = append(errs, fmt.Errorf("%w: parallel_threshold must be >= 0, got %d", ErrInvalidConfig, c.ParallelThreshold))
	}
	if c.TopK < 1 || c.TopK > 3 {
		errs = append(errs, fmt.Errorf("%w: top_k must be between 1 and 3, got %d", ErrInvalidConfig, c.TopK))
	}
	if math.IsNaN(c.TieMargin) || c.TieMargin < 0 || c.TieMargin > 1 {
		errs = append(errs, fmt.Errorf("%w: tie_margin must be within [0,1], got %v", ErrInvalidConfig, c.TieMargin))
	}
	if c.NormalizeCacheSize < 0 {
		errs = append(errs, fmt.Errorf("%w: normalize_cache_size must be >= 0, got %d", ErrInvalidConfig, c.NormalizeCacheSize))
	}
	return errors.Join(errs...)
}

// ValidateThreshold checks a call-time acceptance threshold.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// String summarizes the configuration for logs.
func (c Config) String() string {
	return fmt.Sprintf("weights=%+v thresholds=%+v cache=%t parallel=%t workers=%d top_k=%d",
		c.Weights, c.Thresholds, c.EnableCache, c.EnableParallel, c.MaxWorkers, c.TopK)
}
