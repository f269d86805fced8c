// Package testutil holds in-memory implementations of the service ports.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-image-editor-backend/internal/inference"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/stripe"
	"ai-image-editor-backend/internal/supabase"
)

var (
	ErrMockLedger   = errors.New("mock ledger error")
	ErrMockStorage  = errors.New("mock storage error")
	ErrMockProvider = errors.New("mock provider error")
	ErrMockPayment  = errors.New("mock payment error")
)

// PNG is a minimal byte sequence that sniffs as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// MockLedger mirrors the conditional updates of supabase.DatabaseClient.
type MockLedger struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*models.Project
	events   map[string]bool
	clock    time.Time

	CreateErr       error
	GetErr          error
	SetReferenceErr error
	ApplyErr        error
	CompleteErr     error
	// CompleteNoRows makes CompleteProject affect zero rows.
	CompleteNoRows bool
	// CompleteDelay is the latency of CompleteProject. The wait honors ctx.
	CompleteDelay time.Duration

	CreateCalls      int
	TransitionCalls  int
	CompleteCalls    int
	ApplyCalls       int
	SetReferenceCall int
	ReclaimCalls     int
	DeleteCalls      int
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		projects: make(map[uuid.UUID]*models.Project),
		events:   make(map[string]bool),
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Seed stores a copy of p as is.
func (m *MockLedger) Seed(p models.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.tick()
		p.UpdatedAt = p.CreatedAt
	}
	m.projects[p.ID] = &p
}

// PaidProject seeds a paid project ready for generation.
func (m *MockLedger) PaidProject(userID uuid.UUID, prompt string) models.Project {
	p := models.Project{
		ID:            uuid.New(),
		UserID:        userID,
		Prompt:        prompt,
		InputImageRef: "input-image/" + userID.String() + "/1-source.png",
		PaymentStatus: models.PaymentPaid,
		Status:        models.StatusPending,
	}
	m.Seed(p)
	return p
}

// Snapshot returns a copy of the stored project.
func (m *MockLedger) Snapshot(id uuid.UUID) (models.Project, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return models.Project{}, false
	}
	return *p, true
}

func (m *MockLedger) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.projects)
}

func (m *MockLedger) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *MockLedger) CreateProject(ctx context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if _, exists := m.projects[p.ID]; exists {
		return fmt.Errorf("duplicate project %s", p.ID)
	}
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	stored := *p
	m.projects[p.ID] = &stored
	return nil
}

func (m *MockLedger) GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	p, ok := m.projects[projectID]
	if !ok {
		return nil, supabase.ErrProjectNotFound
	}
	out := *p
	return &out, nil
}

func (m *MockLedger) GetUserProject(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error) {
	p, err := m.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, supabase.ErrProjectNotFound
	}
	return p, nil
}

func (m *MockLedger) ListProjects(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	out := []models.Project{}
	for _, p := range m.projects {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockLedger) SetPaymentReference(ctx context.Context, projectID, userID uuid.UUID, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetReferenceCall++
	if m.SetReferenceErr != nil {
		return m.SetReferenceErr
	}
	p, ok := m.projects[projectID]
	if !ok || p.UserID != userID || (p.PaymentReference.Valid && p.PaymentReference.String != reference) {
		return supabase.ErrProjectNotFound
	}
	p.PaymentReference.String, p.PaymentReference.Valid = reference, true
	return nil
}

func (m *MockLedger) ApplyPayment(ctx context.Context, rec supabase.PaymentRecord) (supabase.PaymentOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ApplyCalls++
	if m.ApplyErr != nil {
		return "", m.ApplyErr
	}
	if m.events[rec.EventID] {
		return supabase.PaymentDuplicate, nil
	}
	m.events[rec.EventID] = true

	p, ok := m.projects[rec.ProjectID]
	if !ok || p.UserID != rec.UserID {
		return supabase.PaymentNotFound, nil
	}
	if p.PaymentStatus != models.PaymentPending || p.Status != models.StatusPendingPayment {
		return supabase.PaymentAlreadyPaid, nil
	}

	now := m.tick()
	p.PaymentStatus = models.PaymentPaid
	p.Status = models.StatusPending
	p.PaymentTransactionID.String, p.PaymentTransactionID.Valid = rec.TransactionID, rec.TransactionID != ""
	if !p.PaymentReference.Valid && rec.SessionID != "" {
		p.PaymentReference.String, p.PaymentReference.Valid = rec.SessionID, true
	}
	p.PaidAt.Time, p.PaidAt.Valid = now, true
	p.UpdatedAt = now
	return supabase.PaymentApplied, nil
}

func (m *MockLedger) TransitionStatus(ctx context.Context, projectID, userID uuid.UUID, from, to models.Status, lastError string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TransitionCalls++
	if _, err := from.Transition(to); err != nil {
		return false, err
	}
	p, ok := m.projects[projectID]
	if !ok || p.UserID != userID || p.Status != from || p.PaymentStatus != models.PaymentPaid {
		return false, nil
	}
	p.Status = to
	p.LastError.String, p.LastError.Valid = lastError, lastError != ""
	p.UpdatedAt = m.tick()
	return true, nil
}

func (m *MockLedger) CompleteProject(ctx context.Context, projectID, userID uuid.UUID, outputRef string) (bool, error) {
	m.mu.Lock()
	delay := m.CompleteDelay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompleteCalls++
	if m.CompleteErr != nil {
		return false, m.CompleteErr
	}
	if m.CompleteNoRows {
		return false, nil
	}
	p, ok := m.projects[projectID]
	if !ok || p.UserID != userID || p.Status != models.StatusProcessing || p.OutputImageRef.Valid {
		return false, nil
	}
	now := m.tick()
	p.OutputImageRef.String, p.OutputImageRef.Valid = outputRef, true
	p.Status = models.StatusCompleted
	p.LastError.Valid = false
	p.CompletedAt.Time, p.CompletedAt.Valid = now, true
	p.UpdatedAt = now
	return true, nil
}

// ReclaimStale compares updated_at against the mock clock.
func (m *MockLedger) ReclaimStale(ctx context.Context, projectID, userID uuid.UUID, lease time.Duration, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReclaimCalls++
	p, ok := m.projects[projectID]
	if !ok || p.UserID != userID || p.Status != models.StatusProcessing ||
		p.PaymentStatus != models.PaymentPaid || p.OutputImageRef.Valid ||
		!p.UpdatedAt.Before(m.clock.Add(-lease)) {
		return false, nil
	}
	p.Status = models.StatusPending
	p.LastError.String, p.LastError.Valid = reason, reason != ""
	p.UpdatedAt = m.tick()
	return true, nil
}

// Now is the current mock clock.
func (m *MockLedger) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock
}

func (m *MockLedger) DeleteProject(ctx context.Context, projectID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteCalls++
	p, ok := m.projects[projectID]
	if !ok || p.UserID != userID || p.Status == models.StatusProcessing {
		return supabase.ErrProjectNotFound
	}
	delete(m.projects, projectID)
	return nil
}

func (m *MockLedger) Ping(ctx context.Context) error {
	return m.GetErr
}

// MockStore is an in-memory artifact store. URLs are deterministic.
type MockStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string

	// PutErr fails uploads into the named bucket.
	PutErr    map[string]error
	URLErr    error
	RemoveErr error

	PutCalls int
	Removed  []string
	LastTTL  time.Duration
}

func NewMockStore() *MockStore {
	return &MockStore{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
		PutErr:       make(map[string]error),
	}
}

func (m *MockStore) Put(ctx context.Context, ref models.ObjectRef, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PutCalls++
	if err := m.PutErr[ref.Bucket]; err != nil {
		return err
	}
	m.objects[ref.String()] = append([]byte(nil), data...)
	m.contentTypes[ref.String()] = contentType
	return nil
}

func (m *MockStore) URL(ctx context.Context, ref models.ObjectRef, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.URLErr != nil {
		return "", m.URLErr
	}
	m.LastTTL = ttl
	if ttl <= 0 {
		return "https://store.test/public/" + ref.String(), nil
	}
	return fmt.Sprintf("https://store.test/sign/%s?expires=%d", ref, int(ttl.Seconds())), nil
}

func (m *MockStore) Remove(ctx context.Context, refs ...models.ObjectRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	for _, ref := range refs {
		delete(m.objects, ref.String())
		delete(m.contentTypes, ref.String())
		m.Removed = append(m.Removed, ref.String())
	}
	return nil
}

// Object returns stored bytes and content type.
func (m *MockStore) Object(ref string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[ref]
	return data, m.contentTypes[ref], ok
}

// Keys lists stored references in the given bucket.
func (m *MockStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, bucket+"/") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// MockProvider returns a fixed Output. Gate, when set, blocks Generate
// until it is closed; Started receives once per call before blocking.
type MockProvider struct {
	mu sync.Mutex

	Output   inference.Output
	Err      error
	Gate     chan struct{}
	Started  chan struct{}
	Calls    int
	Requests []inference.Request

	// Delay is how long Generate takes before returning. The wait honors ctx.
	Delay time.Duration
}

func NewMockProvider(out inference.Output) *MockProvider {
	return &MockProvider{Output: out}
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) Generate(ctx context.Context, req inference.Request) (inference.Output, error) {
	m.mu.Lock()
	m.Calls++
	m.Requests = append(m.Requests, req)
	gate, started, delay := m.Gate, m.Started, m.Delay
	out, err := m.Output, m.Err
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return inference.Output{}, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return inference.Output{}, ctx.Err()
		}
	}
	return out, err
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MockFetcher serves bytes for known URLs.
type MockFetcher struct {
	mu          sync.Mutex
	Bodies      map[string][]byte
	ContentType string
	Calls       int
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	body, ok := m.Bodies[url]
	if !ok {
		return nil, "", fmt.Errorf("unexpected fetch of %s", url)
	}
	return body, m.ContentType, nil
}

// MockPayments creates numbered checkout sessions.
type MockPayments struct {
	mu sync.Mutex

	Err        error
	Calls      int
	LastParams stripe.CheckoutParams
}

func (m *MockPayments) CreateCheckoutSession(ctx context.Context, p stripe.CheckoutParams) (*stripe.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.LastParams = p
	if m.Err != nil {
		return nil, m.Err
	}
	id := fmt.Sprintf("cs_test_%d", m.Calls)
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	Err    error
	Events []string
}

func (m *MockPublisher) PublishProjectEvent(ctx context.Context, projectID uuid.UUID, event string, payload map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return m.Err
}

func (m *MockPublisher) Published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Events...)
}
