package authgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/channelworks/authgate/token"
)

// Refresh exchanges a live refresh token for a brand-new access/refresh
// pair. Rotation is stateless: nothing is stored server side, so the old
// refresh token stays formally valid until its own expiry. The account gate
// runs on every refresh, which is what actually cuts off suspended or
// locked accounts within one access-token lifetime.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if s == nil || s.tokens == nil {
		return nil, ErrServiceNotReady
	}

	now := s.now()

	claims, err := s.tokens.Verify(refreshToken, token.TypeRefresh, now)
	if err != nil {
		s.metricInc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.metricInc(MetricRefreshFailure)
			s.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, "", ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := gateAccount(account, now, s.cfg.EmailVerification.RequireForLogin); err != nil {
		s.metricInc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshInvalid, false, account.ID, "", err, nil)
		return nil, err
	}

	pair, err := s.tokens.IssuePair(account.ID, account.Email, account.Role, "", now)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.metricInc(MetricRefreshSuccess)
	s.emitAudit(ctx, auditEventRefreshSuccess, true, account.ID, "", nil, nil)

	return &TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}
