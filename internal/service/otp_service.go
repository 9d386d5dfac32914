package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/whatsassist/gateway/internal/config"
	"github.com/whatsassist/gateway/internal/models"
	"github.com/whatsassist/gateway/internal/repository"
)

const (
	otpMin   = 100000
	otpRange = 900000
)

type OTPService struct {
	repo   repository.OTPRepository
	cfg    *config.OTPConfig
	logger *logrus.Logger
	now    func() time.Time
}

func NewOTPService(repo repository.OTPRepository, cfg *config.OTPConfig, logger *logrus.Logger) *OTPService {
	return &OTPService{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for issuance and expiry checks.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	return s
}

// Issue generates a fresh code for identity and replaces any previous one.
// Concurrent issuance is last-writer-wins.
func (s *OTPService) Issue(ctx context.Context, identity string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}

	record := models.OTPRecord{
		Identity: identity,
		Code:     code,
		IssuedAt: s.now().UnixMilli(),
		Attempts: 0,
	}

	if err := s.repo.Store(ctx, record); err != nil {
		return "", fmt.Errorf("failed to persist OTP: %w", err)
	}

	s.logger.WithField("identity", identity).Info("OTP issued")
	return code, nil
}

// Verify returns nil only when candidate matches the live code for identity.
// Store failures are treated as a missing record.
func (s *OTPService) Verify(ctx context.Context, identity, candidate string) error {
	record, err := s.repo.Get(ctx, identity)
	if err != nil {
		if !errors.Is(err, repository.ErrOTPNotFound) {
			s.logger.WithError(err).Warn("Failed to read OTP record, treating as missing")
		}
		return ErrOTPNotFound
	}

	if record.Age(s.now()) > s.cfg.Expiry {
		return ErrOTPExpired
	}

	if s.cfg.MaxAttempts > 0 && record.Attempts >= s.cfg.MaxAttempts {
		return ErrOTPAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(candidate), []byte(record.Code)) != 1 {
		if s.cfg.MaxAttempts > 0 {
			s.recordFailedAttempt(ctx, record)
		}
		return ErrOTPInvalid
	}

	return nil
}

func (s *OTPService) recordFailedAttempt(ctx context.Context, record *models.OTPRecord) {
	attempts, err := s.repo.IncrementAttempts(ctx, record.Identity, record.IssuedAt)
	if errors.Is(err, repository.ErrOTPConflict) {
		// A newer code replaced this one; its counter starts fresh.
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to record OTP attempt")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"identity": record.Identity,
		"attempts": attempts,
	}).Warn("OTP verification failed")
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}
