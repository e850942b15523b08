package models

import "time"

// ShareScope область действия токена
type ShareScope string

const ScopeRentcard ShareScope = "rentcard"

func (s ShareScope) Valid() bool {
	return s == ScopeRentcard
}

// TokenStatus результат проверки токена
type TokenStatus string

const (
	TokenValid    TokenStatus = "valid"
	TokenRevoked  TokenStatus = "revoked"
	TokenExpired  TokenStatus = "expired"
	TokenNotFound TokenStatus = "not_found"
)

// ShareToken отзываемый доступ к RentCard одного арендатора
type ShareToken struct {
	ID           int64      `json:"id"`
	Token        string     `json:"token"`
	TenantID     int64      `json:"tenant_id"`
	Scope        ShareScope `json:"scope"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Revoked      bool       `json:"revoked"`
	ViewCount    int64      `json:"view_count"`
	LastViewedAt *time.Time `json:"last_viewed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Status вычисляет состояние токена на момент now. Отзыв проверяется раньше истечения.
func (t *ShareToken) Status(now time.Time) TokenStatus {
	if t.Revoked {
		return TokenRevoked
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
		return TokenExpired
	}
	return TokenValid
}

type CreateShareTokenInput struct {
	Scope     ShareScope
	ExpiresAt *time.Time
	Owner     Owner
}
