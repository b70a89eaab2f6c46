package services

import (
	"context"
	"fmt"

	"panel-service/internal/models"
)

// PoolStore is the persistence surface for the proxy and account pool.
// The postgres repository satisfies it; tests inject fakes.
type PoolStore interface {
	GetProxy(ctx context.Context, proxyID string) (*models.Proxy, error)
	GetAccount(ctx context.Context, accountID string) (*models.ProviderAccount, error)
	RecordProxySuccess(ctx context.Context, proxyID string, responseTimeMs int64, egressIP string) error
	RecordProxyFailure(ctx context.Context, proxyID string) error
	SetAccountProxy(ctx context.Context, accountID string, proxyID *string) error
	ToggleAccount(ctx context.Context, accountID string) (*models.ProviderAccount, error)
}

// PoolService administers the outbound proxies and provider accounts the
// automation workers draw on. Health counters here are advisory for
// worker scheduling, not financial state.
type PoolService struct {
	poolRepo PoolStore
}

func NewPoolService(poolRepo PoolStore) *PoolService {
	return &PoolService{poolRepo: poolRepo}
}

// ReportTestResult records the outcome of an out-of-band connectivity
// probe against a proxy.
func (s *PoolService) ReportTestResult(ctx context.Context, proxyID string, req models.ProxyTestResultRequest) (*models.ProxyStatusResponse, error) {
	if req.Success {
		if err := s.poolRepo.RecordProxySuccess(ctx, proxyID, req.ResponseTimeMs, req.EgressIP); err != nil {
			return nil, err
		}
	} else {
		if err := s.poolRepo.RecordProxyFailure(ctx, proxyID); err != nil {
			return nil, err
		}
	}

	proxy, err := s.poolRepo.GetProxy(ctx, proxyID)
	if err != nil {
		return nil, err
	}

	return proxyStatus(proxy), nil
}

// AssignProxy binds the account to a proxy, or clears the binding when
// proxyID is nil. An inactive proxy is never newly assigned.
func (s *PoolService) AssignProxy(ctx context.Context, accountID string, proxyID *string) (*models.AccountStatusResponse, error) {
	if proxyID != nil {
		proxy, err := s.poolRepo.GetProxy(ctx, *proxyID)
		if err != nil {
			return nil, err
		}
		if !proxy.IsActive {
			return nil, fmt.Errorf("%w: proxy %s", ErrProxyUnavailable, proxy.ID)
		}
	}

	if err := s.poolRepo.SetAccountProxy(ctx, accountID, proxyID); err != nil {
		return nil, err
	}

	account, err := s.poolRepo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return accountStatus(account), nil
}

// ToggleAccount flips the account's active flag; reactivation resets the
// failure streak and cooldown.
func (s *PoolService) ToggleAccount(ctx context.Context, accountID string) (*models.AccountStatusResponse, error) {
	account, err := s.poolRepo.ToggleAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return accountStatus(account), nil
}

func proxyStatus(p *models.Proxy) *models.ProxyStatusResponse {
	return &models.ProxyStatusResponse{
		ProxyID:             p.ID,
		SessionID:           p.SessionID,
		IsActive:            p.IsActive,
		LastTestedAt:        p.LastTestedAt,
		LastIP:              p.LastIP,
		ResponseTimeMs:      p.ResponseTimeMs,
		ConsecutiveFailures: p.ConsecutiveFailures,
		TotalFailures:       p.TotalFailures,
		CooldownUntil:       p.CooldownUntil,
	}
}

func accountStatus(a *models.ProviderAccount) *models.AccountStatusResponse {
	return &models.AccountStatusResponse{
		AccountID:           a.ID,
		ProxyID:             a.ProxyID,
		IsActive:            a.IsActive,
		ConsecutiveFailures: a.ConsecutiveFailures,
		CooldownUntil:       a.CooldownUntil,
	}
}
