package authgate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/channelworks/authgate/password"
)

// Register creates a new account. When email verification is enabled the
// account starts pending and a verification challenge is mailed; with
// AutoLogin enabled the response carries a token pair and session so the
// storefront can sign the customer in immediately.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	if s == nil || s.accounts == nil {
		return nil, ErrServiceNotReady
	}

	now := s.now()
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		s.emitAudit(ctx, auditEventAccountCreated, false, "", "", ErrEmailExists, nil)
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return nil, ErrPasswordPolicy
		}
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = s.cfg.Account.DefaultRole
	}

	status := StatusActive
	if s.cfg.EmailVerification.Enabled {
		status = StatusPending
	}

	account := &Account{
		ID:             newAccountID(),
		Email:          email,
		FirstName:      strings.TrimSpace(input.FirstName),
		LastName:       strings.TrimSpace(input.LastName),
		CredentialHash: hash,
		Role:           role,
		Status:         status,
		CreatedAt:      now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailExists) {
			s.emitAudit(ctx, auditEventAccountCreated, false, "", "", ErrEmailExists, nil)
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricAccountCreated)
	s.emitAudit(ctx, auditEventAccountCreated, true, account.ID, "", nil, nil)

	if s.cfg.EmailVerification.Enabled {
		if err := s.sendEmailVerification(ctx, account, now); err != nil {
			log.Print("authgate: failed to send verification challenge: ", err)
		}
	}

	result := &LoginResult{Account: account}
	if !s.cfg.Account.AutoLogin {
		return result, nil
	}

	var sessionID string
	if s.sessions != nil {
		sid, err := s.createSession(ctx, account, now)
		if err != nil {
			return nil, err
		}
		sessionID = sid
	}

	pair, err := s.tokens.IssuePair(account.ID, account.Email, account.Role, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	result.SessionID = sessionID
	result.Tokens = TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}
	return result, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
