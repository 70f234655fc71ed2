package endpoint

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/ariebrainware/lis-backend/model"
	"github.com/ariebrainware/lis-backend/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// maxResultValue is the largest value a decimal(10,2) column holds.
const maxResultValue = 99999999.99

var errInvalidReference = errors.New("referenced record does not exist")

func checkResultValue(name string, v *float64, required bool) error {
	if v == nil {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	if math.IsNaN(*v) || *v < 0 || *v > maxResultValue {
		return fmt.Errorf("%s must be between 0 and %.2f", name, maxResultValue)
	}
	return nil
}

func validateResultRequest(req model.LabResultRequest, full bool) error {
	if full {
		if req.PatientID == 0 {
			return fmt.Errorf("patient is required")
		}
		if req.SpecialistID == 0 {
			return fmt.Errorf("specialist is required")
		}
	}
	values := []struct {
		name string
		v    *float64
	}{
		{"total_cholesterol", req.TotalCholesterol},
		{"hdl_cholesterol", req.HDLCholesterol},
		{"ldl_cholesterol", req.LDLCholesterol},
		{"triglycerides", req.Triglycerides},
	}
	for _, val := range values {
		if err := checkResultValue(val.name, val.v, full); err != nil {
			return err
		}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// resultUpdates collects the columns present in req.
func resultUpdates(req model.LabResultRequest) map[string]interface{} {
	updates := map[string]interface{}{}
	if req.PatientID != 0 {
		updates["patient_id"] = req.PatientID
	}
	if req.SpecialistID != 0 {
		updates["specialist_id"] = req.SpecialistID
	}
	if req.TotalCholesterol != nil {
		updates["total_cholesterol"] = round2(*req.TotalCholesterol)
	}
	if req.HDLCholesterol != nil {
		updates["hdl_cholesterol"] = round2(*req.HDLCholesterol)
	}
	if req.LDLCholesterol != nil {
		updates["ldl_cholesterol"] = round2(*req.LDLCholesterol)
	}
	if req.Triglycerides != nil {
		updates["triglycerides"] = round2(*req.Triglycerides)
	}
	return updates
}

// checkReferences verifies that the patient and specialist ids, when non-zero, exist.
func checkReferences(tx *gorm.DB, patientID, specialistID uint) error {
	if patientID != 0 {
		var n int64
		if err := tx.Model(&model.Patient{}).Where("id = ?", patientID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: patient %d", errInvalidReference, patientID)
		}
	}
	if specialistID != 0 {
		var n int64
		if err := tx.Model(&model.LabSpecialist{}).Where("id = ?", specialistID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: specialist %d", errInvalidReference, specialistID)
		}
	}
	return nil
}

func respondResultWriteError(c *gin.Context, msg string, err error) {
	if errors.Is(err, errInvalidReference) {
		util.CallUserError(c, util.APIErrorParams{Msg: msg, Err: err})
		return
	}
	respondWriteError(c, msg, err)
}

type resultListQuery struct {
	listQuery
	AdmissionCode string
	PatientID     uint
	SpecialistID  uint
}

func parseResultQuery(c *gin.Context) resultListQuery {
	patientID, _ := strconv.ParseUint(c.Query("patient"), 10, 64)
	specialistID, _ := strconv.ParseUint(c.Query("specialist"), 10, 64)
	return resultListQuery{
		listQuery:     parseListQuery(c),
		AdmissionCode: c.Query("admission_code"),
		PatientID:     uint(patientID),
		SpecialistID:  uint(specialistID),
	}
}

func fetchResults(db *gorm.DB, q resultListQuery) ([]model.LabResult, int64, error) {
	var results []model.LabResult
	var total int64

	query := db.Model(&model.LabResult{})
	if q.AdmissionCode != "" {
		query = query.Joins("JOIN patients ON patients.id = lab_results.patient_id").
			Where("patients.admission_code = ?", q.AdmissionCode)
	}
	if q.PatientID != 0 {
		query = query.Where("lab_results.patient_id = ?", q.PatientID)
	}
	if q.SpecialistID != 0 {
		query = query.Where("lab_results.specialist_id = ?", q.SpecialistID)
	}
	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.apply(query).
		Select("lab_results.*").
		Preload("Patient").
		Preload("Specialist").
		Order("lab_results.id ASC").
		Find(&results).Error
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func loadResult(db *gorm.DB, id uint) (model.LabResult, error) {
	var result model.LabResult
	err := db.Preload("Patient").Preload("Specialist").First(&result, id).Error
	return result, err
}

// ListResults godoc
// @Summary      List lab results
// @Tags         Result
// @Produce      json
// @Param        admission_code query string false "Admission code of the patient"
// @Param        patient query int false "Patient ID"
// @Param        specialist query int false "Specialist ID"
// @Param        limit query int false "Limit number of results"
// @Param        offset query int false "Offset for pagination"
// @Success      200 {object} util.APIResponse{data=object} "Results retrieved"
// @Router       /results [get]
func ListResults(c *gin.Context) {
	db := ensureDB(c)
	if db == nil {
		return
	}

	results, total, err := fetchResults(db, parseResultQuery(c))
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve results", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Results retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(results), "results": results},
	})
}

// GetResult godoc
// @Summary      Get a lab result
// @Tags         Result
// @Produce      json
// @Param        id path int true "Result ID"
// @Success      200 {object} util.APIResponse{data=model.LabResult} "Result retrieved"
// @Failure      404 {object} util.APIResponse "Result not found"
// @Router       /results/{id} [get]
func GetResult(c *gin.Context) {
	id, ok := getIDParam(c)
	if !ok {
		return
	}
	db := ensureDB(c)
	if db == nil {
		return
	}

	result, err := loadResult(db, id)
	if err != nil {
		respondFindError(c, "Result", err)
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Result retrieved", Data: result})
}

// CreateResult godoc
// @Summary      Record a lab result
// @Tags         Result
// @Accept       json
// @Produce      json
// @Param        request body model.LabResultRequest true "Result values"
// @Success      201 {object} util.APIResponse{data=model.LabResult} "Result created"
// @Failure      400 {object} util.APIResponse "Invalid request or unknown patient/specialist"
// @Router       /results [post]
func CreateResult(c *gin.Context) {
	var req model.LabResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid request body", Err: err})
		return
	}
	if err := validateResultRequest(req, true); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid result payload", Err: err})
		return
	}

	db := ensureDB(c)
	if db == nil {
		return
	}

	var result model.LabResult
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := checkReferences(tx, req.PatientID, req.SpecialistID); err != nil {
			return err
		}
		result = model.LabResult{
			PatientID:        req.PatientID,
			SpecialistID:     req.SpecialistID,
			TotalCholesterol: round2(*req.TotalCholesterol),
			HDLCholesterol:   round2(*req.HDLCholesterol),
			LDLCholesterol:   round2(*req.LDLCholesterol),
			Triglycerides:    round2(*req.Triglycerides),
		}
		if err := tx.Create(&result).Error; err != nil {
			return err
		}
		var err error
		result, err = loadResult(tx, result.ID)
		return err
	})
	if err != nil {
		respondResultWriteError(c, "Failed to create result", err)
		return
	}

	audit(c, util.EventRecordCreated, "result", result.ID, result.String(), nil)
	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Result created", Data: result})
}

// UpdateResult godoc
// @Summary      Update a lab result
// @Tags         Result
// @Accept       json
// @Produce      json
// @Param        id path int true "Result ID"
// @Param        request body model.LabResultRequest true "Result values"
// @Success      200 {object} util.APIResponse{data=model.LabResult} "Result updated"
// @Failure      400 {object} util.APIResponse "Invalid request or unknown patient/specialist"
// @Failure      404 {object} util.APIResponse "Result not found"
// @Router       /results/{id} [put]
// @Router       /results/{id} [patch]
func UpdateResult(c *gin.Context) {
	id, ok := getIDParam(c)
	if !ok {
		return
	}

	var req model.LabResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid request body", Err: err})
		return
	}
	if err := validateResultRequest(req, c.Request.Method == http.MethodPut); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid result payload", Err: err})
		return
	}

	db := ensureDB(c)
	if db == nil {
		return
	}

	var result model.LabResult
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&result, id).Error; err != nil {
			return err
		}
		if err := checkReferences(tx, req.PatientID, req.SpecialistID); err != nil {
			return err
		}
		if updates := resultUpdates(req); len(updates) > 0 {
			if err := tx.Model(&result).Updates(updates).Error; err != nil {
				return err
			}
		}
		var err error
		result, err = loadResult(tx, id)
		return err
	})
	if err != nil {
		respondResultWriteError(c, "Failed to update result", err)
		return
	}

	audit(c, util.EventRecordUpdated, "result", result.ID, result.String(), nil)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Result updated", Data: result})
}

// DeleteResult godoc
// @Summary      Delete a lab result
// @Tags         Result
// @Produce      json
// @Param        id path int true "Result ID"
// @Success      200 {object} util.APIResponse "Result deleted"
// @Failure      404 {object} util.APIResponse "Result not found"
// @Router       /results/{id} [delete]
func DeleteResult(c *gin.Context) {
	id, ok := getIDParam(c)
	if !ok {
		return
	}
	db := ensureDB(c)
	if db == nil {
		return
	}

	res := db.Delete(&model.LabResult{}, id)
	if res.Error != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to delete result", Err: res.Error})
		return
	}
	if res.RowsAffected == 0 {
		respondFindError(c, "Result", errRecordNotFound)
		return
	}

	audit(c, util.EventRecordDeleted, "result", id, "result deleted", nil)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Result deleted", Data: map[string]interface{}{"id": id}})
}
