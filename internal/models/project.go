package models

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Status is the lifecycle stage of a Project.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPending        Status = "pending" // paid, ready for generation
	StatusProcessing     Status = "processing"
	StatusCompleted      Status = "completed"
)

var ErrIllegalTransition = errors.New("illegal status transition")

var transitions = map[Status][]Status{
	StatusPendingPayment: {StatusPending},
	StatusPending:        {StatusProcessing},
	StatusProcessing:     {StatusCompleted, StatusPending},
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is legal, ErrIllegalTransition otherwise.
func (s Status) Transition(next Status) (Status, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPending, StatusProcessing, StatusCompleted:
		return true
	}
	return false
}

type Project struct {
	ID                   uuid.UUID      `db:"id"`
	UserID               uuid.UUID      `db:"user_id"`
	Prompt               string         `db:"prompt"`
	InputImageRef        string         `db:"input_image_ref"`
	OutputImageRef       sql.NullString `db:"output_image_ref"`
	PaymentStatus        PaymentStatus  `db:"payment_status"`
	PaymentReference     sql.NullString `db:"payment_reference"`
	PaymentTransactionID sql.NullString `db:"payment_transaction_id"`
	PaymentAmountCents   int64          `db:"payment_amount_cents"`
	PaymentCurrency      string         `db:"payment_currency"`
	Status               Status         `db:"status"`
	LastError            sql.NullString `db:"last_error"`
	PaidAt               sql.NullTime   `db:"paid_at"`
	CompletedAt          sql.NullTime   `db:"completed_at"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (p *Project) IsPaid() bool {
	return p.PaymentStatus == PaymentPaid
}

func (p *Project) OwnedBy(userID uuid.UUID) bool {
	return p.UserID == userID
}

// ObjectRef is the durable reference stored for a blob: "<bucket>/<path>".
type ObjectRef struct {
	Bucket string
	Path   string
}

func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Path
}

func (r ObjectRef) IsZero() bool {
	return r.Bucket == "" && r.Path == ""
}

func ParseObjectRef(ref string) (ObjectRef, error) {
	bucket, path, ok := strings.Cut(ref, "/")
	if !ok || bucket == "" || path == "" {
		return ObjectRef{}, fmt.Errorf("invalid object reference %q", ref)
	}
	return ObjectRef{Bucket: bucket, Path: path}, nil
}
