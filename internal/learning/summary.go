package learning

import (
	"context"
	"sort"
	"time"

	"github.com/wonny/tradeloop/internal/contracts"
)

const (
	summarySectors = 10
	summaryLessons = 10
)

// Summary is a read-only digest of the learning state
type Summary struct {
	TotalEvaluated     int                               `json:"total_evaluated"`
	OverallAccuracyPct float64                           `json:"overall_accuracy_pct"`
	MarketRegime       string                            `json:"market_regime"`
	CurrentWeights     contracts.WeightSet               `json:"current_weights"`
	FactorRankings     []FactorRanking                   `json:"factor_rankings"`
	ActionAccuracy     map[contracts.Action]AccuracyStat `json:"action_accuracy"`
	Calibration        map[string]CalibrationStat        `json:"confidence_calibration"`
	SectorRankings     []SectorRanking                   `json:"sector_rankings"`
	RecentLessons      []contracts.Lesson                `json:"recent_lessons"`
	AdaptationsCount   int                               `json:"adaptations_count"`
	CreatedAt          time.Time                         `json:"created_at"`
	LastUpdated        time.Time                         `json:"last_updated"`
}

// FactorRanking is one factor's accuracy
type FactorRanking struct {
	Factor      string  `json:"factor"`
	AccuracyPct float64 `json:"accuracy"`
	SampleSize  int     `json:"sample_size"`
}

// AccuracyStat is an accuracy with its sample size
type AccuracyStat struct {
	AccuracyPct float64 `json:"accuracy"`
	SampleSize  int     `json:"sample_size"`
}

// CalibrationStat compares a confidence band with its hit rate
type CalibrationStat struct {
	PredictedCount    int     `json:"predicted_count"`
	ActualAccuracyPct float64 `json:"actual_accuracy"`
}

// SectorRanking is one sector's track record
type SectorRanking struct {
	Sector      string  `json:"sector"`
	AccuracyPct float64 `json:"accuracy"`
	AvgPnL      float64 `json:"avg_pnl"`
	Decisions   int     `json:"decisions"`
}

// Summary digests the current learning state
func (e *Engine) Summary(ctx context.Context) (*Summary, error) {
	st, err := e.store.LearningState(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(st), nil
}

// Summarize builds a Summary from a state document
func Summarize(st *contracts.LearningState) *Summary {
	s := &Summary{
		TotalEvaluated:   st.TotalEvaluated,
		MarketRegime:     st.MarketRegime,
		CurrentWeights:   st.CurrentWeights.Clone(),
		ActionAccuracy:   make(map[contracts.Action]AccuracyStat, len(st.ActionAccuracy)),
		Calibration:      make(map[string]CalibrationStat, len(st.Calibration)),
		AdaptationsCount: len(st.AdaptationLog),
		CreatedAt:        st.CreatedAt,
		LastUpdated:      st.LastUpdated,
	}

	correct, total := 0, 0
	for action, aa := range st.ActionAccuracy {
		correct += aa.Correct
		total += aa.Total
		s.ActionAccuracy[action] = AccuracyStat{AccuracyPct: pct(aa.Correct, aa.Total), SampleSize: aa.Total}
	}
	s.OverallAccuracyPct = pct(correct, total)

	for factor, fa := range st.FactorAccuracy {
		s.FactorRankings = append(s.FactorRankings, FactorRanking{
			Factor:      factor,
			AccuracyPct: round1(fa.Accuracy * 100),
			SampleSize:  fa.Total,
		})
	}
	sort.Slice(s.FactorRankings, func(i, j int) bool {
		a, b := s.FactorRankings[i], s.FactorRankings[j]
		if a.AccuracyPct != b.AccuracyPct {
			return a.AccuracyPct > b.AccuracyPct
		}
		return a.Factor < b.Factor
	})

	for bucket, b := range st.Calibration {
		s.Calibration[bucket] = CalibrationStat{PredictedCount: b.Predicted, ActualAccuracyPct: pct(b.Correct, b.Predicted)}
	}

	for sector, sp := range st.SectorPerformance {
		r := SectorRanking{Sector: sector, AccuracyPct: pct(sp.Correct, sp.Decisions), Decisions: sp.Decisions}
		if sp.Decisions > 0 {
			r.AvgPnL = round2(sp.TotalPnL / float64(sp.Decisions))
		}
		s.SectorRankings = append(s.SectorRankings, r)
	}
	sort.Slice(s.SectorRankings, func(i, j int) bool {
		a, b := s.SectorRankings[i], s.SectorRankings[j]
		if a.AccuracyPct != b.AccuracyPct {
			return a.AccuracyPct > b.AccuracyPct
		}
		return a.Sector < b.Sector
	})
	if len(s.SectorRankings) > summarySectors {
		s.SectorRankings = s.SectorRankings[:summarySectors]
	}

	lessons := st.LessonsLearned
	if len(lessons) > summaryLessons {
		lessons = lessons[len(lessons)-summaryLessons:]
	}
	s.RecentLessons = append([]contracts.Lesson{}, lessons...)

	return s
}

func pct(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(correct) / float64(total) * 100)
}
