package models

import "time"

// Database model
type Proxy struct {
	ID                  string     `db:"id"`
	SessionID           string     `db:"session_id"`
	IsActive            bool       `db:"is_active"`
	LastTestedAt        *time.Time `db:"last_tested_at"`
	LastIP              *string    `db:"last_ip"`
	ResponseTimeMs      *int64     `db:"response_time_ms"`
	ConsecutiveFailures int        `db:"consecutive_failures"`
	TotalFailures       int        `db:"total_failures"`
	CooldownUntil       *time.Time `db:"cooldown_until"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// Available reports whether the proxy may be handed to a worker: it must
// be active and out of cooldown.
func (p *Proxy) Available(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.CooldownUntil != nil && now.Before(*p.CooldownUntil) {
		return false
	}
	return true
}

// Database model. Credentials used by automation workers against the
// provider site, optionally pinned to one proxy.
type ProviderAccount struct {
	ID                  string     `db:"id"`
	Username            string     `db:"username"`
	Password            string     `db:"password"`
	ProxyID             *string    `db:"proxy_id"`
	IsActive            bool       `db:"is_active"`
	ConsecutiveFailures int        `db:"consecutive_failures"`
	CooldownUntil       *time.Time `db:"cooldown_until"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// Request/response models
type ProxyTestResultRequest struct {
	Success        bool   `json:"success"`
	ResponseTimeMs int64  `json:"responseTimeMs,omitempty" validate:"omitempty,gte=0"`
	EgressIP       string `json:"egressIp,omitempty" validate:"omitempty,ip"`
}

type AssignProxyRequest struct {
	ProxyID *string `json:"proxyId" validate:"omitempty,uuid4"`
}

type AccountStatusResponse struct {
	AccountID           string     `json:"accountId"`
	ProxyID             *string    `json:"proxyId,omitempty"`
	IsActive            bool       `json:"isActive"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	CooldownUntil       *time.Time `json:"cooldownUntil,omitempty"`
}

type ProxyStatusResponse struct {
	ProxyID             string     `json:"proxyId"`
	SessionID           string     `json:"sessionId"`
	IsActive            bool       `json:"isActive"`
	LastTestedAt        *time.Time `json:"lastTestedAt,omitempty"`
	LastIP              *string    `json:"lastIp,omitempty"`
	ResponseTimeMs      *int64     `json:"responseTimeMs,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	TotalFailures       int        `json:"totalFailures"`
	CooldownUntil       *time.Time `json:"cooldownUntil,omitempty"`
}
