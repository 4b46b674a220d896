package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"teamchat/internal/services"
	"teamchat/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serviceErrorResponse(t *testing.T, err error) (int, utils.APIResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	respondServiceError(c, err)

	var body utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestRespondServiceErrorStatuses(t *testing.T) {
	code, _ := serviceErrorResponse(t, fmt.Errorf("chat abc: %w", services.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, code)

	code, body := serviceErrorResponse(t, fmt.Errorf("%w: threads are disabled for this chat", services.ErrValidation))
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, body.Error)
	assert.Contains(t, body.Error.Message, "threads are disabled")

	code, body = serviceErrorResponse(t, fmt.Errorf("database exploded"))
	assert.Equal(t, http.StatusInternalServerError, code)
	require.NotNil(t, body.Error)
	assert.NotContains(t, body.Error.Message, "exploded", "internals never leak")
}

func TestRespondServiceErrorNamesBlockedAction(t *testing.T) {
	code, body := serviceErrorResponse(t, fmt.Errorf("%w: send-messages", services.ErrPermissionDenied))

	assert.Equal(t, http.StatusForbidden, code)
	require.NotNil(t, body.Error)
	assert.Contains(t, body.Error.Message, "send-messages")
}
