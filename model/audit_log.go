package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog represents a persisted audit event
type AuditLog struct {
	gorm.Model
	EventType string         `json:"event_type" gorm:"column:event_type;type:varchar(64);index"`
	Entity    string         `json:"entity" gorm:"column:entity;type:varchar(64);index"`
	EntityID  string         `json:"entity_id" gorm:"column:entity_id;type:varchar(64);index"`
	RequestID string         `json:"request_id" gorm:"column:request_id;type:varchar(64)"`
	IP        string         `json:"ip" gorm:"column:ip;type:varchar(45)"`
	UserAgent string         `json:"user_agent" gorm:"column:user_agent;type:varchar(512)"`
	Message   string         `json:"message" gorm:"column:message;type:text"`
	Details   datatypes.JSON `json:"details" gorm:"column:details;type:json"`
}
