package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-image-editor-backend/internal/events"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/services"
	"ai-image-editor-backend/internal/supabase"
	"ai-image-editor-backend/internal/testutil"
)

func unpaidProject(e *env) models.Project {
	p := models.Project{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Prompt:        "add a hat",
		InputImageRef: inputBucket + "/u/1-a.png",
		PaymentStatus: models.PaymentPending,
		Status:        models.StatusPendingPayment,
	}
	e.ledger.Seed(p)
	return p
}

func completedSession(p models.Project) map[string]interface{} {
	return map[string]interface{}{
		"id":             "cs_test_pay",
		"object":         "checkout.session",
		"payment_status": "paid",
		"payment_intent": "pi_pay",
		"metadata": map[string]string{
			"project_id": p.ID.String(),
			"user_id":    p.UserID.String(),
		},
	}
}

func TestPayment_AppliesCompletedCheckout(t *testing.T) {
	e := newEnv(t)
	p := unpaidProject(e)

	payload, sig := signedEvent(t, "evt_1", "checkout.session.completed", completedSession(p))
	result, err := e.payment().HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	assert.Equal(t, supabase.PaymentApplied, result.Outcome)
	assert.Equal(t, p.ID, result.ProjectID)

	got, _ := e.ledger.Snapshot(p.ID)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, "pi_pay", got.PaymentTransactionID.String)
	assert.Equal(t, "cs_test_pay", got.PaymentReference.String)
	assert.True(t, got.PaidAt.Valid)
	assert.Equal(t, []string{events.ProjectPaid}, e.publisher.Published())
}

func TestPayment_DuplicateDeliveryIsNoOp(t *testing.T) {
	e := newEnv(t)
	p := unpaidProject(e)
	svc := e.payment()

	payload, sig := signedEvent(t, "evt_dup", "checkout.session.completed", completedSession(p))
	_, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	first, _ := e.ledger.Snapshot(p.ID)

	result, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, supabase.PaymentDuplicate, result.Outcome)

	second, _ := e.ledger.Snapshot(p.ID)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{events.ProjectPaid}, e.publisher.Published())
}

func TestPayment_SecondEventForPaidProject(t *testing.T) {
	e := newEnv(t)
	p := unpaidProject(e)
	svc := e.payment()

	payload, sig := signedEvent(t, "evt_a", "checkout.session.completed", completedSession(p))
	_, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)

	payload, sig = signedEvent(t, "evt_b", "checkout.session.completed", completedSession(p))
	result, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, supabase.PaymentAlreadyPaid, result.Outcome)
}

func TestPayment_InvalidSignatureChangesNothing(t *testing.T) {
	e := newEnv(t)
	p := unpaidProject(e)

	payload, _ := signedEvent(t, "evt_bad", "checkout.session.completed", completedSession(p))

	for _, sig := range []string{"", "t=1,v1=deadbeef"} {
		_, err := e.payment().HandleWebhook(context.Background(), payload, sig)
		require.Error(t, err)
		assert.Equal(t, services.KindSignatureInvalid, services.KindOf(err))
	}

	got, _ := e.ledger.Snapshot(p.ID)
	assert.Equal(t, p.PaymentStatus, got.PaymentStatus)
	assert.Equal(t, p.Status, got.Status)
	assert.Zero(t, e.ledger.ApplyCalls)
}

func TestPayment_IgnoredEvents(t *testing.T) {
	e := newEnv(t)
	p := unpaidProject(e)

	payload, sig := signedEvent(t, "evt_other", "payment_intent.created", map[string]interface{}{
		"id":     "pi_1",
		"object": "payment_intent",
	})
	result, err := e.payment().HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.True(t, result.Ignored)

	session := completedSession(p)
	session["payment_status"] = "unpaid"
	payload, sig = signedEvent(t, "evt_unpaid", "checkout.session.completed", session)
	result, err = e.payment().HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.True(t, result.Ignored)

	assert.Zero(t, e.ledger.ApplyCalls)
	got, _ := e.ledger.Snapshot(p.ID)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
}

func TestPayment_AsyncPaymentSucceeded(t *testing.T) {
	e := newEnv(t)
	p := unpaidProject(e)

	payload, sig := signedEvent(t, "evt_async", "checkout.session.async_payment_succeeded", completedSession(p))
	result, err := e.payment().HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, supabase.PaymentApplied, result.Outcome)
}

func TestPayment_MissingMetadata(t *testing.T) {
	e := newEnv(t)

	payload, sig := signedEvent(t, "evt_meta", "checkout.session.completed", map[string]interface{}{
		"id":             "cs_test_meta",
		"object":         "checkout.session",
		"payment_status": "paid",
	})
	_, err := e.payment().HandleWebhook(context.Background(), payload, sig)
	require.Error(t, err)
	assert.Equal(t, services.KindInvalidInput, services.KindOf(err))
	assert.Zero(t, e.ledger.ApplyCalls)
}

func TestPayment_UnknownProjectIsAcknowledged(t *testing.T) {
	e := newEnv(t)
	ghost := models.Project{ID: uuid.New(), UserID: uuid.New()}

	payload, sig := signedEvent(t, "evt_ghost", "checkout.session.completed", completedSession(ghost))
	result, err := e.payment().HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, supabase.PaymentNotFound, result.Outcome)
}

func TestPayment_WrongOwnerDoesNotPay(t *testing.T) {
	e := newEnv(t)
	p := unpaidProject(e)
	forged := p
	forged.UserID = uuid.New()

	payload, sig := signedEvent(t, "evt_owner", "checkout.session.completed", completedSession(forged))
	result, err := e.payment().HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, supabase.PaymentNotFound, result.Outcome)

	got, _ := e.ledger.Snapshot(p.ID)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
}

func TestPayment_LedgerFailure(t *testing.T) {
	e := newEnv(t)
	p := unpaidProject(e)
	e.ledger.ApplyErr = testutil.ErrMockLedger

	payload, sig := signedEvent(t, "evt_fail", "checkout.session.completed", completedSession(p))
	_, err := e.payment().HandleWebhook(context.Background(), payload, sig)
	require.Error(t, err)
	assert.Equal(t, services.KindInternal, services.KindOf(err))
}
