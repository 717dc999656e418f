// Package status decides whether a bid is ready for submission.
package status

import (
	"fmt"

	"bid-review/pkg/score"
)

// Code is the readiness verdict of a bid.
type Code string

const (
	NotReady       Code = "NOT_READY"
	Incomplete     Code = "INCOMPLETE"
	NeedsReview    Code = "NEEDS_REVIEW"
	ReviewWarnings Code = "REVIEW_WARNINGS"
	Ready          Code = "READY"
)

// Color is the traffic-light rendering of a Code.
type Color string

const (
	Red    Color = "red"
	Orange Color = "orange"
	Yellow Color = "yellow"
	Green  Color = "green"
)

// Thresholds configures the status decision list.
type Thresholds struct {
	MinCompleteness float64 `toml:"min_completeness" json:"min_completeness" validate:"gte=0,lte=100"`
	MinAccuracy     float64 `toml:"min_accuracy" json:"min_accuracy" validate:"gte=0,lte=100"`
	MaxWarnings     int     `toml:"max_warnings" json:"max_warnings" validate:"gte=0"`
}

// DefaultThresholds returns the standard readiness thresholds.
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		MinCompleteness: 80,
		MinAccuracy:     80,
		MaxWarnings:     5,
	}
}

// Input carries the scores and counts a status is derived from.
type Input struct {
	Completeness  float64 `json:"completeness_score" validate:"gte=0,lte=100"`
	Accuracy      float64 `json:"accuracy_score" validate:"gte=0,lte=100"`
	CriticalCount int     `json:"critical_count" validate:"gte=0"`
	WarningCount  int     `json:"warning_count" validate:"gte=0"`
	MissingCount  int     `json:"missing_count" validate:"gte=0"`
}

// Status is the readiness verdict with the figures behind it.
type Status struct {
	Code              Code    `json:"status"`
	Color             Color   `json:"color"`
	Message           string  `json:"message"`
	CompletenessScore float64 `json:"completeness_score"`
	AccuracyScore     float64 `json:"accuracy_score"`
	CriticalIssues    int     `json:"critical_issues"`
	Warnings          int     `json:"warnings"`
}

// Engine evaluates bid status.
type Engine struct {
	thresholds Thresholds
}

// NewEngine creates a status engine. A nil thresholds uses the defaults.
func NewEngine(t *Thresholds) *Engine {
	if t == nil {
		t = DefaultThresholds()
	}
	return &Engine{thresholds: *t}
}

// Thresholds returns the effective thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate applies the decision list in order; the first rule that fires wins.
// Scores are clamped to [0, 100] first.
func (e *Engine) Evaluate(in Input) Status {
	in.Completeness = score.Clamp(in.Completeness)
	in.Accuracy = score.Clamp(in.Accuracy)
	s := Status{
		CompletenessScore: in.Completeness,
		AccuracyScore:     in.Accuracy,
		CriticalIssues:    in.CriticalCount,
		Warnings:          in.WarningCount,
	}

	switch {
	case in.CriticalCount > 0:
		s.Code, s.Color = NotReady, Red
		s.Message = fmt.Sprintf("%d critical issue(s) must be resolved before submission", in.CriticalCount)
	case !score.AtLeast(in.Completeness, e.thresholds.MinCompleteness):
		s.Code, s.Color = Incomplete, Orange
		s.Message = fmt.Sprintf("Bid is %.0f%% complete - %d items missing", in.Completeness, in.MissingCount)
	case !score.AtLeast(in.Accuracy, e.thresholds.MinAccuracy):
		s.Code, s.Color = NeedsReview, Orange
		s.Message = fmt.Sprintf("Quantity accuracy is %.0f%% - review discrepancies", in.Accuracy)
	case in.WarningCount > e.thresholds.MaxWarnings:
		s.Code, s.Color = ReviewWarnings, Yellow
		s.Message = fmt.Sprintf("%d warnings to review before submission", in.WarningCount)
	default:
		s.Code, s.Color = Ready, Green
		s.Message = "Bid appears complete and ready for final review"
	}
	return s
}

// Blocking reports whether the status prevents submission.
func (s Status) Blocking() bool {
	return s.Code == NotReady
}
