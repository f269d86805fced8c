package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"ai-image-editor-backend/internal/models"
)

var ErrProjectNotFound = errors.New("project not found")

// PaymentOutcome describes what applying a payment event did to the ledger.
type PaymentOutcome string

const (
	PaymentApplied     PaymentOutcome = "applied"
	PaymentAlreadyPaid PaymentOutcome = "already_paid"
	PaymentDuplicate   PaymentOutcome = "duplicate"
	PaymentNotFound    PaymentOutcome = "not_found"
)

// PaymentRecord is a verified payment confirmation to apply to a project.
type PaymentRecord struct {
	EventID       string
	EventType     string
	ProjectID     uuid.UUID
	UserID        uuid.UUID
	SessionID     string
	TransactionID string
}

const projectColumns = `id, user_id, prompt, input_image_ref, output_image_ref, payment_status,
	payment_reference, payment_transaction_id, payment_amount_cents, payment_currency, status,
	last_error, paid_at, completed_at, created_at, updated_at`

// DatabaseClient is the project ledger. Every mutation is a conditional
// update scoped by id and user_id; the affected-row count is the result.
type DatabaseClient struct {
	db *sqlx.DB
}

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sqlx.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func NewDatabaseClientFromDB(db *sqlx.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

func (d *DatabaseClient) CreateProject(ctx context.Context, p *models.Project) error {
	err := d.db.QueryRowxContext(ctx, `
		INSERT INTO projects (id, user_id, prompt, input_image_ref, payment_status, status, payment_amount_cents, payment_currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, p.ID, p.UserID, p.Prompt, p.InputImageRef, p.PaymentStatus, p.Status,
		p.PaymentAmountCents, p.PaymentCurrency).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProject loads a project by id alone. Callers compare the owner so a
// foreign project can be reported as forbidden rather than missing.
func (d *DatabaseClient) GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := d.db.GetContext(ctx, &project, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

func (d *DatabaseClient) GetUserProject(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := d.db.GetContext(ctx, &project, `SELECT `+projectColumns+` FROM projects WHERE id = $1 AND user_id = $2`, projectID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

func (d *DatabaseClient) ListProjects(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	projects := []models.Project{}
	err := d.db.SelectContext(ctx, &projects, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// SetPaymentReference records the checkout session id. It never overwrites a
// reference that is already set.
func (d *DatabaseClient) SetPaymentReference(ctx context.Context, projectID, userID uuid.UUID, reference string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE projects
		SET payment_reference = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND (payment_reference IS NULL OR payment_reference = $3)
	`, projectID, userID, reference)
	if err != nil {
		return fmt.Errorf("failed to set payment reference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set payment reference: %w", err)
	}
	if n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// ApplyPayment records the event and flips the project to paid in one
// transaction. Only a project still pending payment is changed.
func (d *DatabaseClient) ApplyPayment(ctx context.Context, rec PaymentRecord) (PaymentOutcome, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO payment_events (event_id, event_type, project_id, session_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, rec.EventID, rec.EventType, rec.ProjectID, rec.SessionID)
	if err != nil {
		return "", fmt.Errorf("failed to record payment event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", fmt.Errorf("failed to record payment event: %w", err)
	} else if n == 0 {
		return PaymentDuplicate, nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE projects
		SET payment_status = 'paid',
			payment_transaction_id = $3,
			payment_reference = COALESCE(payment_reference, $4),
			status = 'pending',
			paid_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND payment_status = 'pending' AND status = 'pending_payment'
	`, rec.ProjectID, rec.UserID, nullString(rec.TransactionID), nullString(rec.SessionID))
	if err != nil {
		return "", fmt.Errorf("failed to mark project paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to mark project paid: %w", err)
	}

	outcome := PaymentApplied
	if n == 0 {
		var exists bool
		err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1 AND user_id = $2)`, rec.ProjectID, rec.UserID)
		if err != nil {
			return "", fmt.Errorf("failed to check project: %w", err)
		}
		outcome = PaymentAlreadyPaid
		if !exists {
			outcome = PaymentNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit payment: %w", err)
	}
	return outcome, nil
}

// TransitionStatus moves a paid project between lifecycle stages. It reports
// false when the row was not in the expected stage.
func (d *DatabaseClient) TransitionStatus(ctx context.Context, projectID, userID uuid.UUID, from, to models.Status, lastError string) (bool, error) {
	if _, err := from.Transition(to); err != nil {
		return false, err
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE projects
		SET status = $4, last_error = $5, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = $3 AND payment_status = 'paid'
	`, projectID, userID, from, to, nullString(lastError))
	if err != nil {
		return false, fmt.Errorf("failed to update project status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update project status: %w", err)
	}
	return n == 1, nil
}

// CompleteProject sets the output reference once, together with the
// completed status.
func (d *DatabaseClient) CompleteProject(ctx context.Context, projectID, userID uuid.UUID, outputRef string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE projects
		SET output_image_ref = $3, status = 'completed', last_error = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'processing' AND output_image_ref IS NULL
	`, projectID, userID, outputRef)
	if err != nil {
		return false, fmt.Errorf("failed to complete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to complete project: %w", err)
	}
	return n == 1, nil
}

// ReclaimStale hands a processing project back to pending when its
// reservation has not been touched for longer than lease. A live run always
// finishes or releases within the lease, so a stale row means the run died.
func (d *DatabaseClient) ReclaimStale(ctx context.Context, projectID, userID uuid.UUID, lease time.Duration, reason string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE projects
		SET status = 'pending', last_error = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'processing' AND payment_status = 'paid'
			AND output_image_ref IS NULL
			AND updated_at < NOW() - make_interval(secs => $4)
	`, projectID, userID, nullString(reason), lease.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to reclaim project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to reclaim project: %w", err)
	}
	return n == 1, nil
}

func (d *DatabaseClient) DeleteProject(ctx context.Context, projectID, userID uuid.UUID) error {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM projects
		WHERE id = $1 AND user_id = $2 AND status <> 'processing'
	`, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (d *DatabaseClient) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
