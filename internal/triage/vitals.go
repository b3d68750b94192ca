package triage

import "github.com/jwalitptl/hospital-api/internal/model"

// Range is an inclusive normal range. A zero Max means no upper bound.
type Range struct {
	Min float64
	Max float64
}

func (r Range) Contains(v float64) bool {
	if v < r.Min {
		return false
	}
	return r.Max == 0 || v <= r.Max
}

// Adult normal ranges.
var (
	SystolicRange         = Range{Min: 90, Max: 140}
	DiastolicRange        = Range{Min: 60, Max: 90}
	TemperatureRange      = Range{Min: 36.0, Max: 38.0}
	HeartRateRange        = Range{Min: 60, Max: 100}
	RespiratoryRateRange  = Range{Min: 12, Max: 20}
	OxygenSaturationRange = Range{Min: 95}
)

// EvaluateVitals flags readings that fall outside the normal ranges. A flag
// already set by the clinician is kept. Pain score is clamped to 0-10.
func EvaluateVitals(v *model.VitalSigns) {
	if v == nil {
		return
	}
	if bp := v.BloodPressure; bp != nil {
		if bp.Systolic != nil && !SystolicRange.Contains(*bp.Systolic) {
			bp.Abnormal = true
		}
		if bp.Diastolic != nil && !DiastolicRange.Contains(*bp.Diastolic) {
			bp.Abnormal = true
		}
	}
	flag(v.Temperature, TemperatureRange)
	flag(v.HeartRate, HeartRateRange)
	flag(v.RespiratoryRate, RespiratoryRateRange)
	flag(v.OxygenSaturation, OxygenSaturationRange)

	if v.PainScore != nil {
		p := *v.PainScore
		if p < 0 {
			p = 0
		} else if p > 10 {
			p = 10
		}
		v.PainScore = &p
	}
}

func flag(r *model.Reading, normal Range) {
	if r == nil || r.Value == nil {
		return
	}
	if !normal.Contains(*r.Value) {
		r.Abnormal = true
	}
}
