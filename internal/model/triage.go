package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConsciousnessLevel string

const (
	ConsciousnessAlert        ConsciousnessLevel = "ALERT"
	ConsciousnessVerbal       ConsciousnessLevel = "VERBAL"
	ConsciousnessPain         ConsciousnessLevel = "PAIN"
	ConsciousnessUnresponsive ConsciousnessLevel = "UNRESPONSIVE"
)

// Normalize upper-cases and trims the level; unknown values are returned as-is.
func (c ConsciousnessLevel) Normalize() ConsciousnessLevel {
	return ConsciousnessLevel(strings.ToUpper(strings.TrimSpace(string(c))))
}

type TriageCategory string

const (
	CategoryRed    TriageCategory = "RED"
	CategoryYellow TriageCategory = "YELLOW"
	CategoryGreen  TriageCategory = "GREEN"
	CategoryBlack  TriageCategory = "BLACK"
)

func (c TriageCategory) Valid() bool {
	switch c {
	case CategoryRed, CategoryYellow, CategoryGreen, CategoryBlack:
		return true
	}
	return false
}

type TriageStatus string

const (
	TriageStatusActive      TriageStatus = "ACTIVE"
	TriageStatusCompleted   TriageStatus = "COMPLETED"
	TriageStatusTransferred TriageStatus = "TRANSFERRED"
)

// Terminal reports whether no further clinical updates are accepted.
func (s TriageStatus) Terminal() bool {
	return s == TriageStatusCompleted || s == TriageStatusTransferred
}

// Reading is a single vital sign measurement. Value is nil when not measured.
type Reading struct {
	Value    *float64 `json:"value,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Abnormal bool     `json:"is_abnormal"`
}

type BloodPressureReading struct {
	Systolic  *float64 `json:"systolic,omitempty"`
	Diastolic *float64 `json:"diastolic,omitempty"`
	Abnormal  bool     `json:"is_abnormal"`
}

// VitalSigns is stored as JSONB in triage_assessments.vital_signs.
type VitalSigns struct {
	BloodPressure    *BloodPressureReading `json:"blood_pressure,omitempty"`
	Temperature      *Reading              `json:"temperature,omitempty"`
	HeartRate        *Reading              `json:"heart_rate,omitempty"`
	RespiratoryRate  *Reading              `json:"respiratory_rate,omitempty"`
	OxygenSaturation *Reading              `json:"oxygen_saturation,omitempty"`
	PainScore        *int                  `json:"pain_score,omitempty"`
}

func (v VitalSigns) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *VitalSigns) Scan(src interface{}) error {
	return scanJSON(src, v)
}

type Symptom struct {
	Name     string `json:"name"`
	Severity string `json:"severity,omitempty"`
}

type Symptoms []Symptom

func (s Symptoms) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *Symptoms) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// RiskFactors are the chronic conditions taken from the medical history.
type RiskFactors struct {
	Diabetes          bool `json:"diabetes"`
	Hypertension      bool `json:"hypertension"`
	HeartDisease      bool `json:"heart_disease"`
	Immunocompromised bool `json:"immunocompromised"`
}

func (r RiskFactors) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *RiskFactors) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// CategoryAlert records a category change on an assessment.
type CategoryAlert struct {
	From      TriageCategory `json:"from"`
	To        TriageCategory `json:"to"`
	Score     int            `json:"score"`
	Manual    bool           `json:"manual,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	ChangedAt time.Time      `json:"changed_at"`
}

// Escalated reports whether the change raised the acuity.
func (a CategoryAlert) Escalated() bool {
	return categoryRank(a.To) > categoryRank(a.From)
}

func categoryRank(c TriageCategory) int {
	switch c {
	case CategoryRed:
		return 3
	case CategoryYellow:
		return 2
	case CategoryGreen:
		return 1
	}
	return 0
}

type CategoryAlerts []CategoryAlert

func (a CategoryAlerts) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *CategoryAlerts) Scan(src interface{}) error {
	return scanJSON(src, a)
}

type TriageAssessment struct {
	Base
	PatientID                   uuid.UUID          `db:"patient_id" json:"patient_id"`
	AssessorID                  uuid.UUID          `db:"assessor_id" json:"assessor_id"`
	AssessedAt                  time.Time          `db:"assessed_at" json:"assessed_at"`
	LastAssessedAt              time.Time          `db:"last_assessed_at" json:"last_assessed_at"`
	VitalSigns                  VitalSigns         `db:"vital_signs" json:"vital_signs"`
	Consciousness               ConsciousnessLevel `db:"consciousness" json:"consciousness"`
	Symptoms                    Symptoms           `db:"symptoms" json:"symptoms"`
	RiskFactors                 RiskFactors        `db:"risk_factors" json:"risk_factors"`
	PriorityScore               int                `db:"priority_score" json:"priority_score"`
	Category                    TriageCategory     `db:"category" json:"category"`
	ManualOverride              bool               `db:"manual_override" json:"manual_override"`
	RecommendedAction           string             `db:"recommended_action" json:"recommended_action"`
	ReassessmentRequired        bool               `db:"reassessment_required" json:"reassessment_required"`
	ReassessmentIntervalMinutes int                `db:"reassessment_interval_minutes" json:"reassessment_interval_minutes"`
	Alerts                      CategoryAlerts     `db:"alerts" json:"alerts"`
	Status                      TriageStatus       `db:"status" json:"status"`
	ChiefComplaint              string             `db:"chief_complaint" json:"chief_complaint,omitempty"`
}

type CreateTriageRequest struct {
	PatientID      uuid.UUID          `json:"patient_id" binding:"required"`
	AssessorID     uuid.UUID          `json:"assessor_id" binding:"required"`
	VitalSigns     VitalSigns         `json:"vital_signs"`
	Consciousness  ConsciousnessLevel `json:"consciousness"`
	Symptoms       Symptoms           `json:"symptoms"`
	RiskFactors    RiskFactors        `json:"risk_factors"`
	ChiefComplaint string             `json:"chief_complaint" binding:"max=1000"`
}

type UpdateVitalsRequest struct {
	AssessorID    *uuid.UUID          `json:"assessor_id"`
	VitalSigns    *VitalSigns         `json:"vital_signs"`
	Consciousness *ConsciousnessLevel `json:"consciousness"`
	Symptoms      *Symptoms           `json:"symptoms"`
	RiskFactors   *RiskFactors        `json:"risk_factors"`
}

type OverrideCategoryRequest struct {
	Category TriageCategory `json:"category" binding:"required,category"`
	Reason   string         `json:"reason" binding:"required,max=500"`
}

type UpdateTriageStatusRequest struct {
	Status TriageStatus `json:"status" binding:"required,oneof=COMPLETED TRANSFERRED"`
}

// ScoreRequest is the stateless scoring preview payload. The validate tags are
// checked only by strict callers such as hmsctl; the scorer itself is lenient.
type ScoreRequest struct {
	VitalSigns    VitalSigns         `json:"vital_signs"`
	Consciousness ConsciousnessLevel `json:"consciousness" validate:"omitempty,consciousness"`
	Symptoms      Symptoms           `json:"symptoms"`
	RiskFactors   RiskFactors        `json:"risk_factors"`
}

type ScoreResult struct {
	Score                       int            `json:"score"`
	Category                    TriageCategory `json:"category"`
	RecommendedAction           string         `json:"recommended_action"`
	ReassessmentIntervalMinutes int            `json:"reassessment_interval_minutes"`
	VitalSigns                  VitalSigns     `json:"vital_signs"`
}

type TriageFilters struct {
	PatientID uuid.UUID
	Category  TriageCategory
	Status    TriageStatus
	Since     time.Time
	Pagination
}

func scanJSON(src interface{}, dst interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
