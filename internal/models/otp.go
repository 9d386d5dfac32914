package models

import "time"

// OTPRecord is the single active one-time code for an identity.
type OTPRecord struct {
	Identity string `json:"identity" dynamodbav:"Identity"`
	Code     string `json:"code" dynamodbav:"Code"`
	IssuedAt int64  `json:"issued_at" dynamodbav:"IssuedAt"`
	Attempts int    `json:"attempts" dynamodbav:"Attempts"`
}

func (r *OTPRecord) IssuedTime() time.Time {
	return time.UnixMilli(r.IssuedAt)
}

// Age is how long ago the code was issued relative to now.
func (r *OTPRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.IssuedTime())
}
