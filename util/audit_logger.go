package util

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/ariebrainware/lis-backend/model"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEventType represents the kind of domain event being recorded
type AuditEventType string

const (
	EventRecordCreated      AuditEventType = "RECORD_CREATED"
	EventRecordUpdated      AuditEventType = "RECORD_UPDATED"
	EventRecordDeleted      AuditEventType = "RECORD_DELETED"
	EventAdmissionIssued    AuditEventType = "ADMISSION_ISSUED"
	EventAdmissionConflict  AuditEventType = "ADMISSION_CONFLICT"
	EventUnauthorizedAccess AuditEventType = "UNAUTHORIZED_ACCESS"
	EventRateLimitExceeded  AuditEventType = "RATE_LIMIT_EXCEEDED"
)

// AuditEvent is a single audit entry
type AuditEvent struct {
	EventType AuditEventType
	Entity    string
	EntityID  string
	RequestID string
	IP        string
	UserAgent string
	Message   string
	Details   map[string]interface{}
}

var auditDB *gorm.DB

// SetAuditLoggerDB sets the gorm DB used to persist audit events.
// Call this during application startup after DB initialization; nil disables persistence.
func SetAuditLoggerDB(db *gorm.DB) {
	auditDB = db
}

const maxLogValueLen = 200

// sanitizeLogValue removes newlines and other characters that could break log parsing
func sanitizeLogValue(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\t", " ")
	// Truncate very long values to prevent log flooding, on a rune boundary
	if len(value) > maxLogValueLen {
		cut := maxLogValueLen
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		value = value[:cut] + "..."
	}
	return value
}

// LogAuditEvent logs an audit event and persists it best-effort.
func LogAuditEvent(event AuditEvent) {
	entry := model.AuditLog{
		EventType: sanitizeLogValue(string(event.EventType)),
		Entity:    sanitizeLogValue(event.Entity),
		EntityID:  sanitizeLogValue(event.EntityID),
		RequestID: sanitizeLogValue(event.RequestID),
		IP:        sanitizeLogValue(event.IP),
		UserAgent: sanitizeLogValue(event.UserAgent),
		Message:   sanitizeLogValue(event.Message),
	}

	log.Info().
		Str("event", entry.EventType).
		Str("entity", entry.Entity).
		Str("entity_id", entry.EntityID).
		Str("request_id", entry.RequestID).
		Str("ip", entry.IP).
		Int("details", len(event.Details)).
		Msg(entry.Message)

	if auditDB == nil {
		return
	}
	if event.Details != nil {
		if b, err := json.Marshal(event.Details); err == nil {
			entry.Details = datatypes.JSON(b)
		}
	}
	if err := auditDB.Create(&entry).Error; err != nil {
		log.Warn().Err(err).Msg("failed to persist audit event")
	}
}
