package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

// statusOf maps domain errors to HTTP statuses. Anything unknown is a 500.
func statusOf(err error) int {
	var ve *utils.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrorRecordNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, utils.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, utils.ErrorConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		config.LogError(config.GetLogger(), "Handlers", c.HandlerName(), c.Request.Method+" "+c.FullPath(), cid, err)
		c.AbortWithStatusJSON(status, errorBody{Error: "internal server error"})
		return
	}
	body := errorBody{Error: err.Error()}
	var ve *utils.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, format string, args ...any) {
	fail(c, utils.NewValidationError(format, args...))
}

// bind decodes the JSON body into dst and answers 400 on failure.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body: %s", err.Error())
		return false
	}
	return true
}

// decodeOptional decodes a JSON body that may be absent. Only malformed
// JSON is an error.
func decodeOptional(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return utils.NewValidationError("invalid request body: %s", err.Error())
	}
	return nil
}

func bindOptional(c *gin.Context, dst any) bool {
	if err := decodeOptional(c, dst); err != nil {
		fail(c, err)
		return false
	}
	return true
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		badRequest(c, "invalid %s", name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		badRequest(c, "invalid %s", name)
		return 0, false
	}
	return n, true
}

func queryBool(c *gin.Context, name string) (*bool, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		badRequest(c, "invalid %s", name)
		return nil, false
	}
	return &b, true
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(c *gin.Context, name string) (*time.Time, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil, true
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		badRequest(c, "invalid %s, expected YYYY-MM-DD", name)
		return nil, false
	}
	return &d, true
}

func queryString(c *gin.Context, name string) *string {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil
	}
	return &v
}

type reasonInput struct {
	Reason string `json:"reason"`
}

type endDateInput struct {
	EndDate *time.Time `json:"end_date"`
}

type activeInput struct {
	IsActive bool `json:"is_active"`
}
