package handlers_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"ai-image-editor-backend/internal/handlers"
	"ai-image-editor-backend/internal/inference"
	"ai-image-editor-backend/internal/middleware"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/services"
	"ai-image-editor-backend/internal/stripe"
	"ai-image-editor-backend/internal/testutil"
)

const webhookSecret = "whsec_handlers_test"

type harness struct {
	router   *gin.Engine
	ledger   *testutil.MockLedger
	store    *testutil.MockStore
	provider *testutil.MockProvider
	payments *testutil.MockPayments
}

// newHarness wires the real services over in-memory ports. Requests carry
// the caller in the X-Test-User header in place of a bearer token.
func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()

	h := &harness{
		ledger:   testutil.NewMockLedger(),
		store:    testutil.NewMockStore(),
		provider: testutil.NewMockProvider(inference.Inline(testutil.PNG, "image/png")),
		payments: &testutil.MockPayments{},
	}
	publisher := &testutil.MockPublisher{}
	storage := services.NewStorageService(h.store, "input-image", "output-image", time.Hour, false)

	checkout := services.NewCheckoutService(h.ledger, storage, h.payments, publisher, log, services.CheckoutOptions{
		AmountCents:     200,
		Currency:        "eur",
		ProductName:     "AI image generation",
		StrictWriteBack: true,
	})
	payment := services.NewPaymentService(stripe.NewClient("sk_test", webhookSecret), h.ledger, publisher, log)
	generation := services.NewGenerationService(h.ledger, storage, h.provider, &testutil.MockFetcher{}, publisher, log, services.GenerationOptions{
		InputURLTTL: 3 * time.Minute,
	})
	projects := services.NewProjectService(h.ledger, storage, log)

	router := gin.New()
	router.GET("/health", handlers.NewHealthHandler(h.ledger).Health)

	api := router.Group("/api/v1")
	api.POST("/webhooks/stripe", handlers.NewWebhookHandler(payment).HandleStripeWebhook)

	authed := api.Group("")
	authed.Use(func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-Test-User")); err == nil {
			c.Set(middleware.UserIDKey, id)
		}
		c.Next()
	})
	authed.POST("/checkout", handlers.NewCheckoutHandler(checkout, 1<<20).CreateCheckout)
	authed.POST("/generate", handlers.NewGenerateHandler(generation, 1<<20).Generate)
	projectsHandler := handlers.NewProjectsHandler(projects)
	authed.GET("/projects", projectsHandler.ListProjects)
	authed.GET("/projects/:project_id", projectsHandler.GetProject)
	authed.DELETE("/projects/:project_id", projectsHandler.DeleteProject)

	h.router = router
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func multipartRequest(t *testing.T, path string, user uuid.UUID, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if user != uuid.Nil {
		req.Header.Set("X-Test-User", user.String())
	}
	return req
}

func webhookRequest(t *testing.T, payload []byte, signature string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	return req
}

func checkoutEvent(t *testing.T, eventID string, p models.Project) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"type":        "checkout.session.completed",
		"api_version": "2024-06-20",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             "cs_test_h",
				"object":         "checkout.session",
				"payment_status": "paid",
				"payment_intent": "pi_h",
				"metadata": map[string]string{
					"project_id": p.ID.String(),
					"user_id":    p.UserID.String(),
				},
			},
		},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: webhookSecret})
	return payload, signed.Header
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
