package services_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-image-editor-backend/internal/events"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/services"
	"ai-image-editor-backend/internal/testutil"
)

func TestCheckout_Initiate(t *testing.T) {
	e := newEnv(t)
	userID := uuid.New()

	result, err := e.checkout(true).Initiate(context.Background(), services.CheckoutInput{
		UserID:   userID,
		Prompt:   "  make the sky purple ",
		Filename: "my photo.png",
		Image:    testutil.PNG,
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", result.SessionID)
	assert.Equal(t, "https://checkout.test/cs_test_1", result.CheckoutURL)

	project, ok := e.ledger.Snapshot(result.ProjectID)
	require.True(t, ok)
	assert.Equal(t, userID, project.UserID)
	assert.Equal(t, "make the sky purple", project.Prompt)
	assert.Equal(t, models.PaymentPending, project.PaymentStatus)
	assert.Equal(t, models.StatusPendingPayment, project.Status)
	assert.Equal(t, "cs_test_1", project.PaymentReference.String)
	assert.Equal(t, int64(200), project.PaymentAmountCents)
	assert.False(t, project.OutputImageRef.Valid)

	keys := e.store.Keys(inputBucket)
	require.Len(t, keys, 1)
	assert.Equal(t, project.InputImageRef, keys[0])
	assert.True(t, strings.HasPrefix(keys[0], inputBucket+"/"+userID.String()+"/"))
	assert.True(t, strings.HasSuffix(keys[0], "-my_photo.png"))
	_, contentType, _ := e.store.Object(keys[0])
	assert.Equal(t, "image/png", contentType)

	assert.Equal(t, result.ProjectID, e.payments.LastParams.ProjectID)
	assert.Equal(t, userID, e.payments.LastParams.UserID)
	assert.Equal(t, "eur", e.payments.LastParams.Currency)
	assert.Equal(t, []string{events.ProjectCreated}, e.publisher.Published())
}

func TestCheckout_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input services.CheckoutInput
		kind  services.Kind
	}{
		{"missing user", services.CheckoutInput{Prompt: "p", Image: testutil.PNG}, services.KindUnauthorized},
		{"blank prompt", services.CheckoutInput{UserID: uuid.New(), Prompt: "   ", Image: testutil.PNG}, services.KindInvalidInput},
		{"missing image", services.CheckoutInput{UserID: uuid.New(), Prompt: "p"}, services.KindInvalidInput},
		{"not an image", services.CheckoutInput{UserID: uuid.New(), Prompt: "p", Image: []byte("hello world")}, services.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)

			_, err := e.checkout(true).Initiate(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.kind, services.KindOf(err))
			assert.Zero(t, e.store.PutCalls)
			assert.Zero(t, e.ledger.CreateCalls)
			assert.Zero(t, e.payments.Calls)
		})
	}
}

func TestCheckout_SessionFailureDiscardsProject(t *testing.T) {
	e := newEnv(t)
	e.payments.Err = testutil.ErrMockPayment

	_, err := e.checkout(true).Initiate(context.Background(), services.CheckoutInput{
		UserID: uuid.New(),
		Prompt: "p",
		Image:  testutil.PNG,
	})
	require.Error(t, err)
	assert.Equal(t, services.KindInternal, services.KindOf(err))
	assert.ErrorIs(t, err, testutil.ErrMockPayment)

	assert.Equal(t, 1, e.ledger.CreateCalls)
	assert.Equal(t, 1, e.ledger.DeleteCalls)
	assert.Zero(t, e.ledger.Count())
	assert.Empty(t, e.store.Keys(inputBucket))
	assert.Zero(t, e.ledger.SetReferenceCall)
}

func TestCheckout_CreateFailureRemovesInput(t *testing.T) {
	e := newEnv(t)
	e.ledger.CreateErr = testutil.ErrMockLedger

	_, err := e.checkout(true).Initiate(context.Background(), services.CheckoutInput{
		UserID: uuid.New(),
		Prompt: "p",
		Image:  testutil.PNG,
	})
	require.Error(t, err)
	assert.Equal(t, services.KindStorageError, services.KindOf(err))
	assert.Empty(t, e.store.Keys(inputBucket))
	assert.Len(t, e.store.Removed, 1)
	assert.Zero(t, e.payments.Calls)
}

func TestCheckout_WriteBackFailure(t *testing.T) {
	t.Run("strict", func(t *testing.T) {
		e := newEnv(t)
		e.ledger.SetReferenceErr = testutil.ErrMockLedger

		_, err := e.checkout(true).Initiate(context.Background(), services.CheckoutInput{
			UserID: uuid.New(),
			Prompt: "p",
			Image:  testutil.PNG,
		})
		require.Error(t, err)
		assert.Equal(t, services.KindStorageError, services.KindOf(err))
	})

	t.Run("lenient", func(t *testing.T) {
		e := newEnv(t)
		e.ledger.SetReferenceErr = testutil.ErrMockLedger

		result, err := e.checkout(false).Initiate(context.Background(), services.CheckoutInput{
			UserID: uuid.New(),
			Prompt: "p",
			Image:  testutil.PNG,
		})
		require.NoError(t, err)
		assert.Equal(t, "cs_test_1", result.SessionID)

		project, _ := e.ledger.Snapshot(result.ProjectID)
		assert.False(t, project.PaymentReference.Valid)
		assert.True(t, hasLog(e.hook, logrus.WarnLevel, "failed to save checkout session id, webhook will backfill it"))
	})
}

func TestCheckout_ThenWebhookMarksPaid(t *testing.T) {
	e := newEnv(t)
	userID := uuid.New()

	result, err := e.checkout(true).Initiate(context.Background(), services.CheckoutInput{
		UserID: userID,
		Prompt: "p",
		Image:  testutil.PNG,
	})
	require.NoError(t, err)

	payload, sig := signedEvent(t, "evt_flow", "checkout.session.completed", map[string]interface{}{
		"id":             result.SessionID,
		"object":         "checkout.session",
		"payment_status": "paid",
		"payment_intent": "pi_flow",
		"metadata": map[string]string{
			"project_id": result.ProjectID.String(),
			"user_id":    userID.String(),
		},
	})
	_, err = e.payment().HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	project, _ := e.ledger.Snapshot(result.ProjectID)
	assert.True(t, project.IsPaid())
	assert.Equal(t, models.StatusPending, project.Status)
	assert.Equal(t, result.SessionID, project.PaymentReference.String)
}
