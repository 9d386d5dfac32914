package service

import (
	"github.com/sirupsen/logrus"
	"github.com/whatsassist/gateway/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// CredentialService checks the password of the single configured account.
type CredentialService struct {
	email        string
	password     string
	passwordHash []byte
	logger       *logrus.Logger
}

func NewCredentialService(cfg *config.AuthConfig, logger *logrus.Logger) *CredentialService {
	s := &CredentialService{
		email:    cfg.Email,
		password: cfg.Password,
		logger:   logger,
	}
	if cfg.PasswordHash != "" {
		s.passwordHash = []byte(cfg.PasswordHash)
	}
	return s
}

// Identity is the email address every code and token is issued for.
func (s *CredentialService) Identity() string {
	return s.email
}

func (s *CredentialService) CheckPassword(candidate string) bool {
	if candidate == "" {
		return false
	}

	if s.passwordHash != nil {
		err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(candidate))
		if err != nil && err != bcrypt.ErrMismatchedHashAndPassword {
			s.logger.WithError(err).Error("Configured password hash is unusable")
		}
		return err == nil
	}

	// Plain mode: compare against AUTH_PASSWORD as written.
	return candidate == s.password
}

// Authenticate returns the account identity when candidate is the password.
func (s *CredentialService) Authenticate(candidate string) (string, error) {
	if !s.CheckPassword(candidate) {
		return "", ErrInvalidCredentials
	}
	return s.email, nil
}
