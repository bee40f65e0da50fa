package contracts

import "time"

// History caps (oldest entries evicted first)
const (
	MaxLessons       = 100
	MaxAdaptations   = 50
	MaxRegimeHistory = 100
	MaxWeightHistory = 200
)

// Market regimes
const (
	RegimeUnknown        = "unknown"
	RegimeHighVolatility = "high_volatility"
	RegimeTrending       = "trending"
	RegimeRangeBound     = "range_bound"
	RegimeNormal         = "normal"
)

// Calibration bucket labels
const (
	Bucket30to50 = "30-50"
	Bucket50to65 = "50-65"
	Bucket65to80 = "65-80"
	Bucket80to95 = "80-95"
)

// CalibrationBucketFor maps a confidence to its bucket label
func CalibrationBucketFor(confidence int) string {
	switch {
	case confidence < 50:
		return Bucket30to50
	case confidence < 65:
		return Bucket50to65
	case confidence < 80:
		return Bucket65to80
	default:
		return Bucket80to95
	}
}

// FactorAccuracy counts alignment between a factor's score and outcomes
type FactorAccuracy struct {
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"` // 0 ~ 1
}

// Record adds one observation and recomputes Accuracy
func (f *FactorAccuracy) Record(aligned bool) {
	f.Total++
	if aligned {
		f.Correct++
	}
	f.Accuracy = float64(f.Correct) / float64(f.Total)
}

// ActionAccuracy counts correct calls for one action
type ActionAccuracy struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// CalibrationBucket counts predictions per confidence band
type CalibrationBucket struct {
	Predicted int `json:"predicted"`
	Correct   int `json:"correct"`
}

// SectorPerformance aggregates outcomes per sector
type SectorPerformance struct {
	Decisions int     `json:"decisions"`
	Correct   int     `json:"correct"`
	TotalPnL  float64 `json:"total_pnl"`
}

// RegimeEntry is one regime observation
type RegimeEntry struct {
	Timestamp          time.Time `json:"timestamp"`
	Regime             string    `json:"regime"`
	VolatilityIndex    float64   `json:"volatility_index"`
	BenchmarkChangePct float64   `json:"benchmark_change_pct"`
}

// Lesson is a human-readable note emitted by weight adaptation
type Lesson struct {
	Timestamp       time.Time `json:"timestamp"`
	Lesson          string    `json:"lesson"`
	EvaluationCount int       `json:"evaluation_count"`
}

// AdaptationEntry records one weight adaptation
type AdaptationEntry struct {
	Timestamp  time.Time          `json:"timestamp"`
	OldWeights WeightSet          `json:"old_weights"`
	NewWeights WeightSet          `json:"new_weights"`
	Accuracies map[string]float64 `json:"accuracies"`
}

// WeightSnapshot is one entry of the weight-adaptation history
type WeightSnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	Weights        WeightSet `json:"weights"`
	Reason         string    `json:"reason"`
	TotalEvaluated int       `json:"total_evaluated"`
}

// LearningState is the single persisted document owned by the learning engine
// ⭐ SSOT: 학습 상태 문서 스키마
type LearningState struct {
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`
	TotalEvaluated int       `json:"total_decisions_evaluated"`

	CurrentWeights    WeightSet                     `json:"current_weights"`
	FactorAccuracy    map[string]*FactorAccuracy    `json:"factor_accuracy"`
	ActionAccuracy    map[Action]*ActionAccuracy    `json:"action_accuracy"`
	Calibration       map[string]*CalibrationBucket `json:"confidence_calibration"`
	SectorPerformance map[string]*SectorPerformance `json:"sector_performance"`

	MarketRegime   string            `json:"market_regime"`
	RegimeHistory  []RegimeEntry     `json:"regime_history"`
	LessonsLearned []Lesson          `json:"lessons_learned"`
	AdaptationLog  []AdaptationEntry `json:"adaptation_log"`
}

// NewLearningState returns the initial document
func NewLearningState(now time.Time) *LearningState {
	s := &LearningState{
		Version:           1,
		CreatedAt:         now,
		LastUpdated:       now,
		CurrentWeights:    DefaultWeights(),
		FactorAccuracy:    make(map[string]*FactorAccuracy),
		ActionAccuracy:    make(map[Action]*ActionAccuracy),
		Calibration:       make(map[string]*CalibrationBucket),
		SectorPerformance: make(map[string]*SectorPerformance),
		MarketRegime:      RegimeUnknown,
		RegimeHistory:     []RegimeEntry{},
		LessonsLearned:    []Lesson{},
		AdaptationLog:     []AdaptationEntry{},
	}
	s.EnsureDefaults()
	return s
}

// EnsureDefaults fills maps and entries missing from older documents
func (s *LearningState) EnsureDefaults() {
	if s.CurrentWeights == nil || len(s.CurrentWeights) == 0 {
		s.CurrentWeights = DefaultWeights()
	}
	if s.FactorAccuracy == nil {
		s.FactorAccuracy = make(map[string]*FactorAccuracy)
	}
	for _, f := range DefaultWeights().Factors() {
		if s.FactorAccuracy[f] == nil {
			s.FactorAccuracy[f] = &FactorAccuracy{Accuracy: 0.5}
		}
	}
	if s.ActionAccuracy == nil {
		s.ActionAccuracy = make(map[Action]*ActionAccuracy)
	}
	for _, a := range AllActions() {
		if s.ActionAccuracy[a] == nil {
			s.ActionAccuracy[a] = &ActionAccuracy{}
		}
	}
	if s.Calibration == nil {
		s.Calibration = make(map[string]*CalibrationBucket)
	}
	for _, b := range []string{Bucket30to50, Bucket50to65, Bucket65to80, Bucket80to95} {
		if s.Calibration[b] == nil {
			s.Calibration[b] = &CalibrationBucket{}
		}
	}
	if s.SectorPerformance == nil {
		s.SectorPerformance = make(map[string]*SectorPerformance)
	}
	if s.MarketRegime == "" {
		s.MarketRegime = RegimeUnknown
	}
}

// Trim applies the history caps
func (s *LearningState) Trim() {
	if n := len(s.LessonsLearned); n > MaxLessons {
		s.LessonsLearned = s.LessonsLearned[n-MaxLessons:]
	}
	if n := len(s.AdaptationLog); n > MaxAdaptations {
		s.AdaptationLog = s.AdaptationLog[n-MaxAdaptations:]
	}
	if n := len(s.RegimeHistory); n > MaxRegimeHistory {
		s.RegimeHistory = s.RegimeHistory[n-MaxRegimeHistory:]
	}
}
