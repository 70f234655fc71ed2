package endpoint

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ariebrainware/lis-backend/model"
	"github.com/ariebrainware/lis-backend/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var specialistLimits = map[string]int{
	"internal_code": 50,
	"name":          100,
	"title":         4,
	"phone":         20,
}

var specialistFields = []string{"internal_code", "name", "title", "phone"}

func normalizeSpecialistRequest(req *model.LabSpecialistRequest) {
	req.InternalCode = strings.TrimSpace(req.InternalCode)
	req.Name = util.NormalizeName(req.Name)
	req.Title = strings.ToUpper(strings.TrimSpace(req.Title))
	req.Phone = strings.TrimSpace(req.Phone)
}

func specialistFieldMap(req model.LabSpecialistRequest) map[string]string {
	return map[string]string{
		"internal_code": req.InternalCode,
		"name":          req.Name,
		"title":         req.Title,
		"phone":         req.Phone,
	}
}

func validateSpecialistRequest(req model.LabSpecialistRequest, full bool) error {
	fields := specialistFieldMap(req)
	if full {
		if err := requireFields(fields, specialistFields...); err != nil {
			return err
		}
	}
	if req.Title != "" && !model.ValidTitle(req.Title) {
		return fmt.Errorf("title must be one of %s, %s, %s", model.TitleBacteriologist, model.TitleMicrobiologist, model.TitleBiologist)
	}
	return checkMaxLen(fields, specialistLimits, specialistFields...)
}

func toSpecialistResponses(specialists []model.LabSpecialist) []model.LabSpecialistResponse {
	out := make([]model.LabSpecialistResponse, 0, len(specialists))
	for _, s := range specialists {
		out = append(out, model.NewLabSpecialistResponse(s))
	}
	return out
}

// ListSpecialists godoc
// @Summary      List lab specialists
// @Tags         Specialist
// @Produce      json
// @Param        internal_code query string false "Exact internal code"
// @Param        limit query int false "Limit number of results"
// @Param        offset query int false "Offset for pagination"
// @Success      200 {object} util.APIResponse{data=object} "Specialists retrieved"
// @Router       /specialists [get]
func ListSpecialists(c *gin.Context) {
	db := ensureDB(c)
	if db == nil {
		return
	}

	query := db.Model(&model.LabSpecialist{})
	if code := c.Query("internal_code"); code != "" {
		query = query.Where("internal_code = ?", code)
	}

	query = query.Session(&gorm.Session{})
	var total int64
	var specialists []model.LabSpecialist
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve specialists", Err: err})
		return
	}
	if err := parseListQuery(c).apply(query).Order("id ASC").Find(&specialists).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve specialists", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Specialists retrieved",
		Data: map[string]interface{}{
			"total":         total,
			"total_fetched": len(specialists),
			"specialists":   toSpecialistResponses(specialists),
		},
	})
}

// GetSpecialist godoc
// @Summary      Get a lab specialist
// @Tags         Specialist
// @Produce      json
// @Param        id path int true "Specialist ID"
// @Success      200 {object} util.APIResponse{data=model.LabSpecialistResponse} "Specialist retrieved"
// @Failure      404 {object} util.APIResponse "Specialist not found"
// @Router       /specialists/{id} [get]
func GetSpecialist(c *gin.Context) {
	id, ok := getIDParam(c)
	if !ok {
		return
	}
	db := ensureDB(c)
	if db == nil {
		return
	}

	var specialist model.LabSpecialist
	if err := db.First(&specialist, id).Error; err != nil {
		respondFindError(c, "Specialist", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Specialist retrieved", Data: model.NewLabSpecialistResponse(specialist)})
}

// CreateSpecialist godoc
// @Summary      Create a lab specialist
// @Tags         Specialist
// @Accept       json
// @Produce      json
// @Param        request body model.LabSpecialistRequest true "Specialist information"
// @Success      201 {object} util.APIResponse{data=model.LabSpecialistResponse} "Specialist created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      409 {object} util.APIResponse "Internal code already registered"
// @Router       /specialists [post]
func CreateSpecialist(c *gin.Context) {
	var req model.LabSpecialistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid request body", Err: err})
		return
	}
	normalizeSpecialistRequest(&req)
	if err := validateSpecialistRequest(req, true); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid specialist payload", Err: err})
		return
	}

	db := ensureDB(c)
	if db == nil {
		return
	}

	specialist := model.LabSpecialist{
		InternalCode: req.InternalCode,
		Name:         req.Name,
		Title:        req.Title,
		Phone:        req.Phone,
	}
	if err := db.Create(&specialist).Error; err != nil {
		respondWriteError(c, "Failed to create specialist", err)
		return
	}

	audit(c, util.EventRecordCreated, "specialist", specialist.ID, "specialist created", map[string]interface{}{"internal_code": specialist.InternalCode})
	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Specialist created", Data: model.NewLabSpecialistResponse(specialist)})
}

// UpdateSpecialist godoc
// @Summary      Update a lab specialist
// @Tags         Specialist
// @Accept       json
// @Produce      json
// @Param        id path int true "Specialist ID"
// @Param        request body model.LabSpecialistRequest true "Specialist information"
// @Success      200 {object} util.APIResponse{data=model.LabSpecialistResponse} "Specialist updated"
// @Failure      404 {object} util.APIResponse "Specialist not found"
// @Failure      409 {object} util.APIResponse "Internal code already registered"
// @Router       /specialists/{id} [put]
// @Router       /specialists/{id} [patch]
func UpdateSpecialist(c *gin.Context) {
	id, ok := getIDParam(c)
	if !ok {
		return
	}

	var req model.LabSpecialistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid request body", Err: err})
		return
	}
	normalizeSpecialistRequest(&req)
	if err := validateSpecialistRequest(req, c.Request.Method == http.MethodPut); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid specialist payload", Err: err})
		return
	}

	db := ensureDB(c)
	if db == nil {
		return
	}

	updates := map[string]interface{}{}
	for name, value := range specialistFieldMap(req) {
		if value != "" {
			updates[name] = value
		}
	}

	var specialist model.LabSpecialist
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&specialist, id).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&specialist).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&specialist, id).Error
	})
	if err != nil {
		respondWriteError(c, "Failed to update specialist", err)
		return
	}

	audit(c, util.EventRecordUpdated, "specialist", specialist.ID, "specialist updated", nil)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Specialist updated", Data: model.NewLabSpecialistResponse(specialist)})
}

// DeleteSpecialist godoc
// @Summary      Delete a lab specialist
// @Description  Deletes the specialist together with every result they signed.
// @Tags         Specialist
// @Produce      json
// @Param        id path int true "Specialist ID"
// @Success      200 {object} util.APIResponse "Specialist deleted"
// @Failure      404 {object} util.APIResponse "Specialist not found"
// @Router       /specialists/{id} [delete]
func DeleteSpecialist(c *gin.Context) {
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
		res := tx.Where("specialist_id = ?", id).Delete(&model.LabResult{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		res = tx.Delete(&model.LabSpecialist{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errRecordNotFound
		}
		return nil
	})
	if err != nil {
		respondWriteError(c, "Failed to delete specialist", err)
		return
	}

	audit(c, util.EventRecordDeleted, "specialist", id, "specialist deleted", map[string]interface{}{"results_deleted": removed})
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Specialist deleted",
		Data: map[string]interface{}{"id": id, "results_deleted": removed},
	})
}
