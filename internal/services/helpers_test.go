package services_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"ai-image-editor-backend/internal/inference"
	"ai-image-editor-backend/internal/services"
	"ai-image-editor-backend/internal/stripe"
	"ai-image-editor-backend/internal/testutil"
)

const (
	inputBucket   = "input-image"
	outputBucket  = "output-image"
	webhookSecret = "whsec_services_test"
)

type env struct {
	ledger    *testutil.MockLedger
	store     *testutil.MockStore
	provider  *testutil.MockProvider
	fetcher   *testutil.MockFetcher
	payments  *testutil.MockPayments
	publisher *testutil.MockPublisher
	storage   *services.StorageService
	log       *logrus.Logger
	hook      *test.Hook
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	store := testutil.NewMockStore()
	return &env{
		ledger:    testutil.NewMockLedger(),
		store:     store,
		provider:  testutil.NewMockProvider(inference.Inline(testutil.PNG, "image/png")),
		fetcher:   &testutil.MockFetcher{Bodies: map[string][]byte{}},
		payments:  &testutil.MockPayments{},
		publisher: &testutil.MockPublisher{},
		storage:   services.NewStorageService(store, inputBucket, outputBucket, time.Hour, false),
		log:       log,
		hook:      hook,
	}
}

func (e *env) generation(opts services.GenerationOptions) *services.GenerationService {
	if opts.InputURLTTL == 0 {
		opts.InputURLTTL = 3 * time.Minute
	}
	return services.NewGenerationService(e.ledger, e.storage, e.provider, e.fetcher, e.publisher, e.log, opts)
}

func (e *env) checkout(strict bool) *services.CheckoutService {
	return services.NewCheckoutService(e.ledger, e.storage, e.payments, e.publisher, e.log, services.CheckoutOptions{
		AmountCents:     200,
		Currency:        "eur",
		ProductName:     "AI image generation",
		SuccessURL:      "https://app.test/dashboard?success=true",
		CancelURL:       "https://app.test/dashboard?canceled=true",
		StrictWriteBack: strict,
	})
}

func (e *env) payment() *services.PaymentService {
	return services.NewPaymentService(stripe.NewClient("sk_test", webhookSecret), e.ledger, e.publisher, e.log)
}

// signedEvent builds a checkout session event and its Stripe-Signature header.
func signedEvent(t *testing.T, id, eventType string, session map[string]interface{}) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2024-06-20",
		"data":        map[string]interface{}{"object": session},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  webhookSecret,
	})
	return payload, signed.Header
}

func hasLog(hook *test.Hook, level logrus.Level, msg string) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Level == level && entry.Message == msg {
			return true
		}
	}
	return false
}
