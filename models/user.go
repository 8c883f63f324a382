package models

import "time"

// SubscriptionType is the billing tier reported by the server.
type SubscriptionType int

const (
	SubscriptionBasic SubscriptionType = iota
	SubscriptionTrial
	SubscriptionBeta
	SubscriptionPremium
	SubscriptionPremiumExpired
	SubscriptionPremiumCanceled
)

// Subscription is the entitlement snapshot of a user. Expiry is a unix
// timestamp in milliseconds, zero when the tier never expires.
type Subscription struct {
	Type   SubscriptionType `json:"type"`
	Expiry int64            `json:"expiry,omitempty"`
}

// Active reports whether the subscription grants paid features at now.
func (s Subscription) Active(now time.Time) bool {
	switch s.Type {
	case SubscriptionTrial, SubscriptionBeta, SubscriptionPremium, SubscriptionPremiumCanceled:
		return s.Expiry == 0 || s.Expiry > now.UnixMilli()
	default:
		return false
	}
}

// User is the account record cached locally.
type User struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	EmailVerified bool         `json:"isEmailConfirmed"`
	Subscription  Subscription `json:"subscription"`
}
