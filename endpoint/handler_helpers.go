package endpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ariebrainware/lis-backend/middleware"
	"github.com/ariebrainware/lis-backend/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var errRecordNotFound = errors.New("record not found")

// listQuery holds pagination parameters shared by list endpoints.
type listQuery struct {
	Limit  int
	Offset int
}

func parseListQuery(c *gin.Context) listQuery {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return listQuery{Limit: limit, Offset: offset}
}

func (q listQuery) apply(db *gorm.DB) *gorm.DB {
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return db
}

// ensureDB returns the request's DB or writes a 500 and returns nil.
func ensureDB(c *gin.Context) *gorm.DB {
	db := middleware.GetDB(c)
	if db == nil {
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Database connection not available",
			Err: fmt.Errorf("db is nil"),
		})
		return nil
	}
	return db.WithContext(c.Request.Context())
}

// getIDParam parses the :id path parameter or writes a 400.
func getIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Invalid ID",
			Err: fmt.Errorf("id must be a positive integer"),
		})
		return 0, false
	}
	return uint(id), true
}

// respondFindError maps a First() error to 404 or 500.
func respondFindError(c *gin.Context, entity string, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, errRecordNotFound) {
		util.CallErrorNotFound(c, util.APIErrorParams{
			Msg: fmt.Sprintf("%s not found", entity),
			Err: errRecordNotFound,
		})
		return
	}
	util.CallServerError(c, util.APIErrorParams{
		Msg: fmt.Sprintf("Failed to retrieve %s", strings.ToLower(entity)),
		Err: err,
	})
}

// respondWriteError maps a persistence error to 409 or 500.
func respondWriteError(c *gin.Context, msg string, err error) {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		util.CallConflict(c, util.APIErrorParams{Msg: msg, Err: err})
		return
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, errRecordNotFound) {
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: msg, Err: errRecordNotFound})
		return
	}
	util.CallServerError(c, util.APIErrorParams{Msg: msg, Err: err})
}

// requireFields returns an error naming the first empty field.
func requireFields(fields map[string]string, order ...string) error {
	for _, name := range order {
		if strings.TrimSpace(fields[name]) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

// checkMaxLen returns an error naming the first field longer than its limit.
func checkMaxLen(values map[string]string, limits map[string]int, order ...string) error {
	for _, name := range order {
		if max, ok := limits[name]; ok && len(values[name]) > max {
			return fmt.Errorf("%s must be at most %d characters", name, max)
		}
	}
	return nil
}

func audit(c *gin.Context, event util.AuditEventType, entity string, id uint, msg string, details map[string]interface{}) {
	util.LogAuditEvent(util.AuditEvent{
		EventType: event,
		Entity:    entity,
		EntityID:  strconv.FormatUint(uint64(id), 10),
		RequestID: middleware.GetRequestID(c),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Message:   msg,
		Details:   details,
	})
}
