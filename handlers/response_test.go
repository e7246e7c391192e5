package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{utils.NewValidationError("bad %s", "input"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", utils.NewValidationError("bad")), http.StatusBadRequest},
		{fmt.Errorf("journal %w", utils.ErrorRecordNotFound), http.StatusNotFound},
		{gorm.ErrRecordNotFound, http.StatusNotFound},
		{utils.ErrorUnauthorized, http.StatusUnauthorized},
		{utils.ErrorForbidden, http.StatusForbidden},
		{utils.ConflictError("period %s is closed", "2026-01"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}

func TestFail_ValidationErrorCarriesFields(t *testing.T) {
	c, w := testContext("/")
	fail(c, utils.NewFieldValidationError("invalid journal", map[string]string{"lines": "must balance"}))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "must balance", body.Fields["lines"])
	assert.True(t, c.IsAborted())
}

func TestFail_HidesInternalErrors(t *testing.T) {
	c, w := testContext("/")
	fail(c, errors.New("dial tcp 10.0.0.1:3306: connection refused"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	assert.NotContains(t, w.Body.String(), "3306")
}

func TestPathId(t *testing.T) {
	c, _ := testContext("/")
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	id, ok := pathId(c, "id")
	assert.True(t, ok)
	assert.Equal(t, 42, id)

	c, w := testContext("/")
	c.Params = gin.Params{{Key: "id", Value: "-3"}}
	_, ok = pathId(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryDate(t *testing.T) {
	c, _ := testContext("/?from=2026-03-31")
	d, ok := queryDate(c, "from")
	require.True(t, ok)
	require.NotNil(t, d)
	assert.Equal(t, "2026-03-31", d.Format("2006-01-02"))

	c, _ = testContext("/")
	d, ok = queryDate(c, "from")
	assert.True(t, ok)
	assert.Nil(t, d)

	c, w := testContext("/?from=31/03/2026")
	_, ok = queryDate(c, "from")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryBoolAndInt(t *testing.T) {
	c, _ := testContext("/?active=false&limit=25")
	b, ok := queryBool(c, "active")
	require.True(t, ok)
	require.NotNil(t, b)
	assert.False(t, *b)

	n, ok := queryInt(c, "limit")
	assert.True(t, ok)
	assert.Equal(t, 25, n)

	c, w := testContext("/?limit=ten")
	_, ok = queryInt(c, "limit")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func bodyContext(body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func TestDecodeOptional(t *testing.T) {
	var in reasonInput
	c, _ := testContext("/")
	assert.NoError(t, decodeOptional(c, &in), "no body")

	c, _ = bodyContext("")
	assert.NoError(t, decodeOptional(c, &in), "empty body")

	c, _ = bodyContext(`{"reason":"duplicate"}`)
	require.NoError(t, decodeOptional(c, &in))
	assert.Equal(t, "duplicate", in.Reason)

	c, _ = bodyContext(`{"reason":`)
	err := decodeOptional(c, &in)
	assert.True(t, utils.IsValidationError(err))

	c, _ = bodyContext(`["reason"]`)
	assert.True(t, utils.IsValidationError(decodeOptional(c, &in)))
}

func TestBindOptional_MalformedBodyIs400(t *testing.T) {
	var in matchNotesInput
	c, w := bodyContext(`{"notes": 12`)
	assert.False(t, bindOptional(c, &in))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestRegister_ProtectsNonAuthRoutes(t *testing.T) {
	r := gin.New()
	Register(r)

	routes := map[string]bool{}
	for _, ri := range r.Routes() {
		routes[ri.Method+" "+ri.Path] = true
	}
	assert.True(t, routes["POST /api/v1/auth/login"])
	assert.True(t, routes["POST /api/v1/gl/journals/:id/post"])
	assert.True(t, routes["GET /api/v1/reports/trial-balance"])
	assert.True(t, routes["PATCH /api/v1/cash/matches/:id"])

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
