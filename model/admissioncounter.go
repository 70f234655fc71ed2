package model

import "time"

// AdmissionCounter holds the last admission sequence number handed out for a month.
// Period is the "YYYYMM" key, Code the last code issued under it.
type AdmissionCounter struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	Period     string    `json:"period" gorm:"size:6;not null;uniqueIndex"`
	LastNumber int       `json:"last_number" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
