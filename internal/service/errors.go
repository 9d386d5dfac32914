package service

import "errors"

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrOTPNotFound         = errors.New("OTP not found")
	ErrOTPExpired          = errors.New("OTP expired")
	ErrOTPInvalid          = errors.New("invalid OTP")
	ErrOTPAttemptsExceeded = errors.New("maximum attempts exceeded")
	ErrDeliveryFailure     = errors.New("failed to deliver OTP")
)
