package admission

import (
	"fmt"
	"testing"
	"time"

	"github.com/ariebrainware/lis-backend/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens a private in-memory database limited to one connection so
// that concurrent tests exercise the generator's own serialization.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:admission_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := model.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time {
		return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	}
}

func seedPatients(t *testing.T, db *gorm.DB, codes ...string) {
	t.Helper()
	for _, code := range codes {
		p := newPatient(code)
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("seed patient %s: %v", code, err)
		}
	}
}

func newPatient(code string) model.Patient {
	return model.Patient{
		Document:      "1020304050",
		AdmissionCode: code,
		FirstName:     "Ana",
		LastName:      "Gomez",
		Address:       "Calle 10",
		Phone:         "3001234567",
	}
}

func persistPatient(tx *gorm.DB, code string) error {
	p := newPatient(code)
	return tx.Create(&p).Error
}
