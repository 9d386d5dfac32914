package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/whatsassist/gateway/internal/models"
)

// RedisOTPRepository stores each record as a JSON string under otp:<identity>
// with a TTL, so stale codes disappear on their own.
type RedisOTPRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisOTPRepository(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisOTPRepository {
	return &RedisOTPRepository{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func otpKey(identity string) string {
	return fmt.Sprintf("otp:%s", identity)
}

func (r *RedisOTPRepository) Store(ctx context.Context, record models.OTPRecord) error {
	dataJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP record: %w", err)
	}

	if err := r.client.Set(ctx, otpKey(record.Identity), dataJSON, r.ttl).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in Redis")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *RedisOTPRepository) Get(ctx context.Context, identity string) (*models.OTPRecord, error) {
	dataJSON, err := r.client.Get(ctx, otpKey(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	var record models.OTPRecord
	if err := json.Unmarshal(dataJSON, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP record: %w", err)
	}

	return &record, nil
}

func (r *RedisOTPRepository) IncrementAttempts(ctx context.Context, identity string, issuedAt int64) (int, error) {
	key := otpKey(identity)
	var attempts int

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		dataJSON, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrOTPConflict
		}
		if err != nil {
			return err
		}

		var record models.OTPRecord
		if err := json.Unmarshal(dataJSON, &record); err != nil {
			return fmt.Errorf("failed to unmarshal OTP record: %w", err)
		}
		if record.IssuedAt != issuedAt {
			return ErrOTPConflict
		}

		record.Attempts++
		updatedJSON, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal OTP record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updatedJSON, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}

		attempts = record.Attempts
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return 0, ErrOTPConflict
	}
	if err != nil {
		if errors.Is(err, ErrOTPConflict) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to increment OTP attempts: %w", err)
	}

	return attempts, nil
}
