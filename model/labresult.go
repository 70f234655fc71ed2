package model

import (
	"fmt"
	"time"
)

// LabResult represents a lipid profile recorded for a patient by a specialist
// @Description Lab result information
type LabResult struct {
	ID               uint      `json:"id" gorm:"primarykey" example:"1"`
	PatientID        uint      `json:"patient" gorm:"not null;index" example:"1"`
	SpecialistID     uint      `json:"specialist" gorm:"not null;index" example:"1"`
	TotalCholesterol float64   `json:"total_cholesterol" gorm:"type:decimal(10,2);not null" example:"190.50"`
	HDLCholesterol   float64   `json:"hdl_cholesterol" gorm:"type:decimal(10,2);not null" example:"55.00"`
	LDLCholesterol   float64   `json:"ldl_cholesterol" gorm:"type:decimal(10,2);not null" example:"110.20"`
	Triglycerides    float64   `json:"triglycerides" gorm:"type:decimal(10,2);not null" example:"140.00"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"-"`

	Patient    *Patient       `json:"patient_details,omitempty" gorm:"foreignKey:PatientID"`
	Specialist *LabSpecialist `json:"specialist_details,omitempty" gorm:"foreignKey:SpecialistID"`
}

func (r LabResult) String() string {
	code, internal := "", ""
	if r.Patient != nil {
		code = r.Patient.AdmissionCode
	}
	if r.Specialist != nil {
		internal = r.Specialist.InternalCode
	}
	return fmt.Sprintf("Results for %s by %s", code, internal)
}

// LabResultRequest is the writable subset of LabResult. created_at is server managed.
// @Description Lab result create/update request
type LabResultRequest struct {
	PatientID        uint     `json:"patient" example:"1"`
	SpecialistID     uint     `json:"specialist" example:"1"`
	TotalCholesterol *float64 `json:"total_cholesterol" example:"190.50"`
	HDLCholesterol   *float64 `json:"hdl_cholesterol" example:"55.00"`
	LDLCholesterol   *float64 `json:"ldl_cholesterol" example:"110.20"`
	Triglycerides    *float64 `json:"triglycerides" example:"140.00"`
}
