package model

import (
	"fmt"

	"gorm.io/gorm"
)

// AllModels lists every table owned by the service, in dependency order.
var AllModels = []interface{}{
	&Patient{},
	&LabSpecialist{},
	&LabResult{},
	&AdmissionCounter{},
	&AuditLog{},
}

// Migrate creates or updates the schema for all models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
