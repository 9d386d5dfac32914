package repository

import (
	"context"
	"sync"

	"github.com/whatsassist/gateway/internal/models"
)

type MemoryOTPRepository struct {
	mu      sync.Mutex
	records map[string]models.OTPRecord
}

func NewMemoryOTPRepository() *MemoryOTPRepository {
	return &MemoryOTPRepository{
		records: make(map[string]models.OTPRecord),
	}
}

func (r *MemoryOTPRepository) Store(ctx context.Context, record models.OTPRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[record.Identity] = record
	return nil
}

func (r *MemoryOTPRepository) Get(ctx context.Context, identity string) (*models.OTPRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[identity]
	if !ok {
		return nil, ErrOTPNotFound
	}
	return &record, nil
}

func (r *MemoryOTPRepository) IncrementAttempts(ctx context.Context, identity string, issuedAt int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[identity]
	if !ok || record.IssuedAt != issuedAt {
		return 0, ErrOTPConflict
	}

	record.Attempts++
	r.records[identity] = record
	return record.Attempts, nil
}
