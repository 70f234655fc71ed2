package model

import (
	"fmt"
	"time"
)

// Specialist titles accepted by the laboratory.
const (
	TitleBacteriologist = "BACT"
	TitleMicrobiologist = "MICR"
	TitleBiologist      = "BIOL"
)

var titleDisplay = map[string]string{
	TitleBacteriologist: "Bacteriólogo/a",
	TitleMicrobiologist: "Microbiólogo/a",
	TitleBiologist:      "Biólogo/a",
}

// ValidTitle reports whether title is one of the known specialist titles.
func ValidTitle(title string) bool {
	_, ok := titleDisplay[title]
	return ok
}

// TitleDisplay returns the human label for a title code, or the code itself when unknown.
func TitleDisplay(title string) string {
	if d, ok := titleDisplay[title]; ok {
		return d
	}
	return title
}

// LabSpecialist represents a laboratory professional who signs results
// @Description Lab specialist information
type LabSpecialist struct {
	ID           uint      `json:"id" gorm:"primarykey" example:"1"`
	InternalCode string    `json:"internal_code" gorm:"size:50;not null;uniqueIndex" example:"LAB-001"`
	Name         string    `json:"name" gorm:"size:100;not null" example:"Laura Perez"`
	Title        string    `json:"title" gorm:"size:4;not null" example:"BACT"`
	Phone        string    `json:"phone" gorm:"size:20;not null" example:"3109876543"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Results []LabResult `json:"-" gorm:"foreignKey:SpecialistID;constraint:OnDelete:CASCADE"`
}

func (s LabSpecialist) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.InternalCode)
}

// LabSpecialistRequest is the writable subset of LabSpecialist.
// @Description Lab specialist create/update request
type LabSpecialistRequest struct {
	InternalCode string `json:"internal_code" example:"LAB-001"`
	Name         string `json:"name" example:"Laura Perez"`
	Title        string `json:"title" example:"BACT"`
	Phone        string `json:"phone" example:"3109876543"`
}

// LabSpecialistResponse adds the display label of the title.
type LabSpecialistResponse struct {
	LabSpecialist
	TitleDisplay string `json:"title_display" example:"Bacteriólogo/a"`
}

// NewLabSpecialistResponse wraps s with its title label.
func NewLabSpecialistResponse(s LabSpecialist) LabSpecialistResponse {
	return LabSpecialistResponse{LabSpecialist: s, TitleDisplay: TitleDisplay(s.Title)}
}
