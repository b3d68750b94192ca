// Package triage computes acuity scores and categories from a clinical snapshot.
// Everything here is pure; callers persist results and record category changes.
package triage

import (
	"strings"

	"github.com/jwalitptl/hospital-api/internal/model"
)

// Snapshot is the clinical input to the scorer.
type Snapshot struct {
	Vitals        model.VitalSigns
	Consciousness model.ConsciousnessLevel
	Symptoms      []string
	RiskFactors   model.RiskFactors
}

// SnapshotOf builds a Snapshot from a stored assessment.
func SnapshotOf(a *model.TriageAssessment) Snapshot {
	return Snapshot{
		Vitals:        a.VitalSigns,
		Consciousness: a.Consciousness,
		Symptoms:      SymptomNames(a.Symptoms),
		RiskFactors:   a.RiskFactors,
	}
}

func SymptomNames(symptoms model.Symptoms) []string {
	names := make([]string, 0, len(symptoms))
	for _, s := range symptoms {
		names = append(names, s.Name)
	}
	return names
}

const (
	weightBloodPressure    = 2
	weightTemperature      = 1
	weightHeartRate        = 2
	weightRespiratoryRate  = 2
	weightOxygenSaturation = 2
	weightCriticalSymptom  = 3
	weightRiskFactor       = 1
)

const (
	redThreshold    = 15
	yellowThreshold = 10
)

var consciousnessWeights = map[model.ConsciousnessLevel]int{
	model.ConsciousnessUnresponsive: 10,
	model.ConsciousnessPain:         7,
	model.ConsciousnessVerbal:       4,
	model.ConsciousnessAlert:        0,
}

var criticalSymptoms = map[string]struct{}{
	"chest pain":            {},
	"difficulty breathing":  {},
	"severe bleeding":       {},
	"stroke symptoms":       {},
	"loss of consciousness": {},
}

// ComputeScore adds up the weighted contributions of the snapshot.
// Missing readings and unknown consciousness levels contribute nothing.
func ComputeScore(s Snapshot) int {
	score := 0
	v := s.Vitals

	if v.BloodPressure != nil && v.BloodPressure.Abnormal {
		score += weightBloodPressure
	}
	if v.Temperature != nil && v.Temperature.Abnormal {
		score += weightTemperature
	}
	if v.HeartRate != nil && v.HeartRate.Abnormal {
		score += weightHeartRate
	}
	if v.RespiratoryRate != nil && v.RespiratoryRate.Abnormal {
		score += weightRespiratoryRate
	}
	if v.OxygenSaturation != nil && v.OxygenSaturation.Abnormal {
		score += weightOxygenSaturation
	}

	score += consciousnessWeights[s.Consciousness.Normalize()]

	if v.PainScore != nil {
		score += painWeight(*v.PainScore)
	}

	for _, name := range s.Symptoms {
		if IsCriticalSymptom(name) {
			score += weightCriticalSymptom
		}
	}

	rf := s.RiskFactors
	for _, present := range []bool{rf.Diabetes, rf.Hypertension, rf.HeartDisease, rf.Immunocompromised} {
		if present {
			score += weightRiskFactor
		}
	}

	return score
}

func painWeight(pain int) int {
	switch {
	case pain >= 8:
		return 3
	case pain >= 5:
		return 2
	case pain >= 3:
		return 1
	default:
		return 0
	}
}

// IsCriticalSymptom matches name against the critical set ignoring case,
// separators and surrounding whitespace.
func IsCriticalSymptom(name string) bool {
	_, ok := criticalSymptoms[normalizeSymptom(name)]
	return ok
}

func normalizeSymptom(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// DeriveCategory maps a score to RED, YELLOW or GREEN. BLACK is never derived.
func DeriveCategory(score int) model.TriageCategory {
	switch {
	case score >= redThreshold:
		return model.CategoryRed
	case score >= yellowThreshold:
		return model.CategoryYellow
	default:
		return model.CategoryGreen
	}
}

// Priority is the queue ordering weight for a category.
func Priority(c model.TriageCategory) int {
	switch c {
	case model.CategoryRed:
		return 3
	case model.CategoryYellow:
		return 2
	case model.CategoryGreen:
		return 1
	default:
		return 0
	}
}

func RecommendedAction(c model.TriageCategory) string {
	switch c {
	case model.CategoryRed:
		return "Immediate resuscitation and physician review"
	case model.CategoryYellow:
		return "Urgent assessment within 30 minutes"
	case model.CategoryGreen:
		return "Routine consultation in queue order"
	case model.CategoryBlack:
		return "No resuscitation; follow deceased patient protocol"
	default:
		return ""
	}
}

// Result is the outcome of scoring a snapshot.
type Result struct {
	Score             int
	Category          model.TriageCategory
	RecommendedAction string
	Interval          int
}

// Evaluate range-checks the vitals in place and scores the snapshot.
func Evaluate(s *Snapshot) Result {
	EvaluateVitals(&s.Vitals)
	score := ComputeScore(*s)
	category := DeriveCategory(score)
	interval, _ := ReassessmentInterval(category)
	return Result{
		Score:             score,
		Category:          category,
		RecommendedAction: RecommendedAction(category),
		Interval:          int(interval.Minutes()),
	}
}
