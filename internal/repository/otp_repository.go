package repository

import (
	"context"
	"errors"

	"github.com/whatsassist/gateway/internal/models"
)

var (
	ErrOTPNotFound = errors.New("otp record not found")
	// ErrOTPConflict means the record changed between read and write.
	ErrOTPConflict = errors.New("otp record was replaced concurrently")
)

// OTPRepository keeps at most one record per identity. Every method is a
// single-key operation; Store overwrites unconditionally. Records are never
// deleted: Redis and DynamoDB expire them by TTL and the next Store replaces them.
type OTPRepository interface {
	Store(ctx context.Context, record models.OTPRecord) error
	Get(ctx context.Context, identity string) (*models.OTPRecord, error)
	// IncrementAttempts bumps the counter only if the stored record still
	// carries issuedAt, and returns the new count.
	IncrementAttempts(ctx context.Context, identity string, issuedAt int64) (int, error)
}
