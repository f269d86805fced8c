package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/testutil"
)

func TestCheckout_Success(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()

	w := h.do(multipartRequest(t, "/api/v1/checkout", userID, map[string]string{"prompt": "add a rainbow"}, testutil.PNG))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cs_test_1", resp.SessionID)
	assert.Equal(t, "https://checkout.test/cs_test_1", resp.CheckoutURL)

	projectID, err := uuid.Parse(resp.ProjectID)
	require.NoError(t, err)
	project, ok := h.ledger.Snapshot(projectID)
	require.True(t, ok)
	assert.Equal(t, userID, project.UserID)
	assert.Equal(t, models.StatusPendingPayment, project.Status)
}

func TestCheckout_Validation(t *testing.T) {
	tests := []struct {
		name   string
		user   uuid.UUID
		fields map[string]string
		image  []byte
		status int
	}{
		{"unauthenticated", uuid.Nil, map[string]string{"prompt": "p"}, testutil.PNG, http.StatusUnauthorized},
		{"missing prompt", uuid.New(), map[string]string{}, testutil.PNG, http.StatusBadRequest},
		{"missing image", uuid.New(), map[string]string{"prompt": "p"}, nil, http.StatusBadRequest},
		{"not an image", uuid.New(), map[string]string{"prompt": "p"}, []byte("plain text"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			w := h.do(multipartRequest(t, "/api/v1/checkout", tt.user, tt.fields, tt.image))
			assert.Equal(t, tt.status, w.Code)
			assert.Zero(t, h.ledger.Count())
			assert.Zero(t, h.payments.Calls)
		})
	}
}

func TestCheckout_TooLarge(t *testing.T) {
	h := newHarness(t)
	big := append(append([]byte{}, testutil.PNG...), make([]byte, 1<<20)...)

	w := h.do(multipartRequest(t, "/api/v1/checkout", uuid.New(), map[string]string{"prompt": "p"}, big))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, h.store.PutCalls)
}
