package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ariebrainware/lis-backend/admission"
	"github.com/ariebrainware/lis-backend/model"
	"github.com/ariebrainware/lis-backend/util"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var patientLimits = map[string]int{
	"document":   20,
	"first_name": 100,
	"last_name":  100,
	"address":    200,
	"phone":      20,
}

var patientFields = []string{"document", "first_name", "last_name", "address", "phone"}

func normalizePatientRequest(req *model.PatientRequest) {
	req.Document = util.NormalizeName(req.Document)
	req.FirstName = util.NormalizeName(req.FirstName)
	req.LastName = util.NormalizeName(req.LastName)
	req.Address = util.NormalizeName(req.Address)
	req.Phone = util.NormalizeName(req.Phone)
}

func patientFieldMap(req model.PatientRequest) map[string]string {
	return map[string]string{
		"document":   req.Document,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"address":    req.Address,
		"phone":      req.Phone,
	}
}

// validatePatientRequest checks required fields when full is true, and the
// length limits of every provided field.
func validatePatientRequest(req model.PatientRequest, full bool) error {
	fields := patientFieldMap(req)
	if full {
		if err := requireFields(fields, patientFields...); err != nil {
			return err
		}
	}
	return checkMaxLen(fields, patientLimits, patientFields...)
}

type patientListQuery struct {
	listQuery
	Document      string
	AdmissionCode string
	Keyword       string
}

func parsePatientQuery(c *gin.Context) patientListQuery {
	return patientListQuery{
		listQuery:     parseListQuery(c),
		Document:      c.Query("document"),
		AdmissionCode: c.Query("admission_code"),
		Keyword:       c.Query("keyword"),
	}
}

func fetchPatients(db *gorm.DB, q patientListQuery) ([]model.Patient, int64, error) {
	var patients []model.Patient
	var total int64

	query := db.Model(&model.Patient{})
	if q.Document != "" {
		query = query.Where("document = ?", q.Document)
	}
	if q.AdmissionCode != "" {
		query = query.Where("admission_code = ?", q.AdmissionCode)
	}
	if q.Keyword != "" {
		kw := "%" + q.Keyword + "%"
		query = query.Where("first_name LIKE ? OR last_name LIKE ? OR admission_code LIKE ? OR document LIKE ?", kw, kw, kw, kw)
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := q.apply(query).Order("id ASC").Find(&patients).Error; err != nil {
		return nil, 0, err
	}
	return patients, total, nil
}

// ListPatients godoc
// @Summary      List patients
// @Tags         Patient
// @Produce      json
// @Param        document query string false "Exact document number"
// @Param        admission_code query string false "Exact admission code"
// @Param        keyword query string false "Search in names, document and admission code"
// @Param        limit query int false "Limit number of results"
// @Param        offset query int false "Offset for pagination"
// @Success      200 {object} util.APIResponse{data=object} "Patients retrieved"
// @Router       /patients [get]
func ListPatients(c *gin.Context) {
	db := ensureDB(c)
	if db == nil {
		return
	}

	patients, total, err := fetchPatients(db, parsePatientQuery(c))
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Failed to retrieve patients",
			Err: err,
		})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Patients retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(patients), "patients": patients},
	})
}

// GetPatient godoc
// @Summary      Get a patient
// @Tags         Patient
// @Produce      json
// @Param        id path int true "Patient ID"
// @Success      200 {object} util.APIResponse{data=model.Patient} "Patient retrieved"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /patients/{id} [get]
func GetPatient(c *gin.Context) {
	id, ok := getIDParam(c)
	if !ok {
		return
	}
	db := ensureDB(c)
	if db == nil {
		return
	}

	var patient model.Patient
	if err := db.First(&patient, id).Error; err != nil {
		respondFindError(c, "Patient", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Patient retrieved", Data: patient})
}

// AdmitPatient creates a patient with a freshly generated admission code. The
// whole transaction is retried on ErrUniquenessConflict, at most maxAttempts times.
func AdmitPatient(ctx context.Context, db *gorm.DB, gen *admission.Generator, req model.PatientRequest, maxAttempts int) (model.Patient, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var patient model.Patient
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		patient = model.Patient{
			Document:  req.Document,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Address:   req.Address,
			Phone:     req.Phone,
		}
		_, err = gen.Admit(ctx, db, func(tx *gorm.DB, code string) error {
			patient.AdmissionCode = code
			return tx.Create(&patient).Error
		})
		if err == nil || !errors.Is(err, admission.ErrUniquenessConflict) {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("retrying patient admission")
	}
	if err != nil {
		return model.Patient{}, err
	}
	return patient, nil
}

// CreatePatient godoc
// @Summary      Admit a new patient
// @Description  The admission code is generated by the server; any admission_code in the body is ignored.
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Param        request body model.PatientRequest true "Patient information"
// @Success      201 {object} util.APIResponse{data=model.Patient} "Patient created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      409 {object} util.APIResponse "Admission code conflict, retry"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /patients [post]
func CreatePatient(gen *admission.Generator, maxAttempts int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.PatientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			util.CallUserError(c, util.APIErrorParams{
				Msg: "Invalid request body",
				Err: err,
			})
			return
		}
		normalizePatientRequest(&req)
		if err := validatePatientRequest(req, true); err != nil {
			util.CallUserError(c, util.APIErrorParams{
				Msg: "Patient payload is missing required fields",
				Err: err,
			})
			return
		}

		db := ensureDB(c)
		if db == nil {
			return
		}

		patient, err := AdmitPatient(c.Request.Context(), db, gen, req, maxAttempts)
		switch {
		case errors.Is(err, admission.ErrUniquenessConflict):
			audit(c, util.EventAdmissionConflict, "patient", 0, "admission code conflict", map[string]interface{}{"error": err.Error()})
			util.CallConflict(c, util.APIErrorParams{
				Msg: "Admission code already taken, please retry",
				Err: err,
			})
			return
		case errors.Is(err, admission.ErrSequenceOverflow):
			util.CallConflict(c, util.APIErrorParams{
				Msg: "Monthly admission capacity exhausted",
				Err: err,
			})
			return
		case err != nil:
			util.CallServerError(c, util.APIErrorParams{
				Msg: "Failed to create patient",
				Err: err,
			})
			return
		}

		audit(c, util.EventAdmissionIssued, "patient", patient.ID, "patient admitted",
			map[string]interface{}{"admission_code": patient.AdmissionCode, "sequencer": gen.SequencerName()})
		util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Patient created", Data: patient})
	}
}

// UpdatePatient godoc
// @Summary      Update a patient
// @Description  PUT requires every field, PATCH only the ones to change. admission_code cannot be changed.
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Param        id path int true "Patient ID"
// @Param        request body model.PatientRequest true "Patient information"
// @Success      200 {object} util.APIResponse{data=model.Patient} "Patient updated"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /patients/{id} [put]
// @Router       /patients/{id} [patch]
func UpdatePatient(c *gin.Context) {
	id, ok := getIDParam(c)
	if !ok {
		return
	}

	var req model.PatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Invalid request body",
			Err: err,
		})
		return
	}
	normalizePatientRequest(&req)
	if err := validatePatientRequest(req, c.Request.Method == http.MethodPut); err != nil {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Invalid patient payload",
			Err: err,
		})
		return
	}

	db := ensureDB(c)
	if db == nil {
		return
	}

	updates := map[string]interface{}{}
	for name, value := range patientFieldMap(req) {
		if value != "" {
			updates[name] = value
		}
	}

	var patient model.Patient
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&patient, id).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&patient).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&patient, id).Error
	})
	if err != nil {
		respondWriteError(c, "Failed to update patient", err)
		return
	}

	audit(c, util.EventRecordUpdated, "patient", patient.ID, fmt.Sprintf("patient %s updated", patient.AdmissionCode), nil)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Patient updated", Data: patient})
}

// DeletePatient godoc
// @Summary      Delete a patient
// @Description  Deletes the patient together with all of their lab results.
// @Tags         Patient
// @Produce      json
// @Param        id path int true "Patient ID"
// @Success      200 {object} util.APIResponse "Patient deleted"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /patients/{id} [delete]
func DeletePatient(c *gin.Context) {
	id, ok := getIDParam(c)
	if !ok {
		return
	}
	db := ensureDB(c)
	if db == nil {
		return
	}

	var removed int64
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("patient_id = ?", id).Delete(&model.LabResult{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		res = tx.Delete(&model.Patient{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errRecordNotFound
		}
		return nil
	})
	if err != nil {
		respondWriteError(c, "Failed to delete patient", err)
		return
	}

	audit(c, util.EventRecordDeleted, "patient", id, "patient deleted", map[string]interface{}{"results_deleted": removed})
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Patient deleted",
		Data: map[string]interface{}{"id": id, "results_deleted": removed},
	})
}

// NextAdmissionCode godoc
// @Summary      Preview the next admission code
// @Description  Nothing is reserved; a concurrent admission may take the code first.
// @Tags         Patient
// @Produce      json
// @Success      200 {object} util.APIResponse{data=object} "Next admission code"
// @Router       /patients/next-code [get]
func NextAdmissionCode(gen *admission.Generator) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := ensureDB(c)
		if db == nil {
			return
		}

		code, err := gen.Preview(c.Request.Context(), db)
		if err != nil {
			if errors.Is(err, admission.ErrSequenceOverflow) {
				util.CallConflict(c, util.APIErrorParams{
					Msg: "Monthly admission capacity exhausted",
					Err: err,
				})
				return
			}
			util.CallServerError(c, util.APIErrorParams{
				Msg: "Failed to compute next admission code",
				Err: err,
			})
			return
		}

		util.CallSuccessOK(c, util.APISuccessParams{
			Msg:  "Next admission code",
			Data: map[string]interface{}{"admission_code": code, "period": gen.Period().Key()},
		})
	}
}
