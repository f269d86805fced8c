package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-image-editor-backend/internal/handlers"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/services"
	"ai-image-editor-backend/internal/testutil"
)

func authedRequest(t *testing.T, method, path string, user uuid.UUID) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", user.String())
	return req
}

func TestProjects_ListGetDelete(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	p := h.ledger.PaidProject(userID, "p")

	w := h.do(authedRequest(t, http.MethodGet, "/api/v1/projects", userID))
	require.Equal(t, http.StatusOK, w.Code)
	var list models.ProjectListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Projects, 1)
	assert.Equal(t, p.ID.String(), list.Projects[0].ID)

	w = h.do(authedRequest(t, http.MethodGet, "/api/v1/projects/"+p.ID.String(), userID))
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(authedRequest(t, http.MethodGet, "/api/v1/projects/"+p.ID.String(), uuid.New()))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(authedRequest(t, http.MethodDelete, "/api/v1/projects/"+p.ID.String(), userID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	assert.Zero(t, h.ledger.Count())
}

func TestProjects_BadID(t *testing.T) {
	h := newHarness(t)

	w := h.do(authedRequest(t, http.MethodGet, "/api/v1/projects/nope", uuid.New()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	w := h.do(authedRequest(t, http.MethodGet, "/health", uuid.Nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")

	h.ledger.GetErr = testutil.ErrMockLedger
	w = h.do(authedRequest(t, http.MethodGet, "/health", uuid.Nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := map[services.Kind]int{
		services.KindUnauthorized:             http.StatusUnauthorized,
		services.KindForbidden:                http.StatusForbidden,
		services.KindNotFound:                 http.StatusNotFound,
		services.KindInvalidInput:             http.StatusBadRequest,
		services.KindPaymentRequired:          http.StatusPaymentRequired,
		services.KindSignatureInvalid:         http.StatusBadRequest,
		services.KindUpstreamGenerationFailed: http.StatusBadGateway,
		services.KindStorageError:             http.StatusInternalServerError,
		services.KindAlreadyProcessing:        http.StatusConflict,
		services.KindAlreadyCompleted:         http.StatusConflict,
		services.KindPartialSuccess:           http.StatusInternalServerError,
		services.KindInternal:                 http.StatusInternalServerError,
		services.Kind("unknown"):              http.StatusInternalServerError,
	}

	for kind, want := range tests {
		assert.Equal(t, want, handlers.HTTPStatus(kind), string(kind))
	}
}
