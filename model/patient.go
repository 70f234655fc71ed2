package model

import (
	"fmt"
	"time"
)

// Patient represents an admitted patient
// @Description Patient information. admission_code is assigned by the server.
type Patient struct {
	ID            uint      `json:"id" gorm:"primarykey" example:"1"`
	Document      string    `json:"document" gorm:"size:20;not null;index" example:"1020304050"`
	AdmissionCode string    `json:"admission_code" gorm:"size:50;not null;uniqueIndex" example:"ADM2024010001"`
	FirstName     string    `json:"first_name" gorm:"size:100;not null" example:"Ana"`
	LastName      string    `json:"last_name" gorm:"size:100;not null" example:"Gomez"`
	Address       string    `json:"address" gorm:"size:200;not null" example:"Calle 10 # 20-30"`
	Phone         string    `json:"phone" gorm:"size:20;not null" example:"3001234567"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Results []LabResult `json:"-" gorm:"foreignKey:PatientID;constraint:OnDelete:CASCADE"`
}

func (p Patient) String() string {
	return fmt.Sprintf("%s %s - %s", p.FirstName, p.LastName, p.AdmissionCode)
}

// PatientRequest is the writable subset of Patient accepted on create and update.
// The admission code is deliberately absent so a client cannot set it.
// @Description Patient create/update request
type PatientRequest struct {
	Document  string `json:"document" example:"1020304050"`
	FirstName string `json:"first_name" example:"Ana"`
	LastName  string `json:"last_name" example:"Gomez"`
	Address   string `json:"address" example:"Calle 10 # 20-30"`
	Phone     string `json:"phone" example:"3001234567"`
}
