package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/token"
)

// Login authenticates identifier (an email) with secret and returns a fresh
// token pair.
//
// The lockout state is checked before the secret is looked at. A wrong
// secret counts one failure and may lock the account; the failing attempt
// itself still gets ErrInvalidCredentials. Unknown identifiers are
// indistinguishable from wrong secrets. A correct secret clears the failure
// counter, then the password age is enforced.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	account, err := e.findAccount(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.passwords.VerifyAbsent(secret)
			e.metrics.Inc(MetricLoginFailure)
			e.emit(ctx, EventLoginFailure, "", false, err, nil)
		}
		return TokenPair{}, err
	}

	if err := e.checkLockout(ctx, "login", account.ID); err != nil {
		return TokenPair{}, err
	}

	cred, err := e.getCredential(ctx, "login", account.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return TokenPair{}, err
	}
	if !e.checkSecret(cred, err == nil, secret) {
		return TokenPair{}, e.loginFailed(ctx, account.ID)
	}

	if !account.Active || !cred.Active {
		e.metrics.Inc(MetricLoginDisabled)
		e.emit(ctx, EventLoginDisabled, account.ID, false, ErrAccountDisabled, nil)
		return TokenPair{}, ErrAccountDisabled
	}

	if err := e.lockout.ResetFailures(ctx, account.ID); err != nil {
		return TokenPair{}, e.internalError("login", account.ID, err)
	}

	if err := e.ensureNotExpired(ctx, account.ID); err != nil {
		if errors.Is(err, password.ErrExpired) {
			e.metrics.Inc(MetricLoginPasswordExpired)
			e.emit(ctx, EventLoginPasswordExpired, account.ID, false, ErrPasswordExpired, nil)
			return TokenPair{}, ErrPasswordExpired
		}
		return TokenPair{}, e.internalError("login", account.ID, err)
	}

	pair, err := e.issuePair(ctx, account)
	if err != nil {
		return TokenPair{}, e.internalError("login", account.ID, err)
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emit(ctx, EventLoginSuccess, account.ID, true, nil, nil)
	return pair, nil
}

// RefreshSession rotates refreshToken and returns a new pair. The presented
// token is consumed whether or not the account is still usable.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	next, err := e.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, refresh.ErrInvalidOrExpired) {
			e.metrics.Inc(MetricRefreshFailure)
			e.emit(ctx, EventRefreshFailure, "", false, ErrInvalidToken, nil)
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, e.internalError("refresh", "", err)
	}

	account, err := e.getAccount(ctx, "refresh", next.AccountID)
	if err == nil && !account.Active {
		err = ErrAccountDisabled
	}
	if err != nil {
		if rerr := e.refresh.Revoke(ctx, next.Token); rerr != nil {
			e.logger.Warn("revoking refresh token of unusable account failed",
				zap.String("account_id", next.AccountID),
				zap.Error(rerr),
			)
		}
		if errors.Is(err, ErrInternal) {
			return TokenPair{}, err
		}
		e.metrics.Inc(MetricRefreshFailure)
		e.emit(ctx, EventRefreshFailure, next.AccountID, false, err, nil)
		return TokenPair{}, ErrInvalidToken
	}

	access, err := e.tokens.Issue(subjectOf(account))
	if err != nil {
		return TokenPair{}, e.internalError("refresh", account.ID, err)
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emit(ctx, EventRefreshSuccess, account.ID, true, nil, nil)
	return TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     next.Token,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// Logout revokes refreshToken. Unknown or already revoked tokens are not an
// error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.refresh.Revoke(ctx, refreshToken); err != nil {
		return e.internalError("logout", "", err)
	}
	e.metrics.Inc(MetricLogout)
	e.emit(ctx, EventLogout, "", true, nil, nil)
	return nil
}

// LogoutAll revokes every refresh token of accountID and returns how many
// were removed.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.refresh.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, e.internalError("logout_all", accountID, err)
	}
	e.metrics.Inc(MetricLogoutAll)
	e.emit(ctx, EventLogoutAll, accountID, true, nil, nil)
	return n, nil
}

// VerifyAccessToken checks signature, issuer, expiry and revocation of an
// access token. Every failure is ErrInvalidToken.
func (e *Engine) VerifyAccessToken(ctx context.Context, accessToken string) (Identity, error) {
	if e == nil {
		return Identity{}, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()
	}

	claims, err := e.tokens.VerifyContext(ctx, accessToken)
	if err != nil {
		e.metrics.Inc(MetricAccessTokenRejected)
		return Identity{}, ErrInvalidToken
	}

	id := Identity{
		AccountID: claims.UID,
		Email:     claims.Subject,
		Role:      Role(claims.Role),
		TokenID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// RevokeAccessToken makes accessToken fail verification until it expires.
// Tokens that already fail verification are ignored.
func (e *Engine) RevokeAccessToken(ctx context.Context, accessToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := e.tokens.Revoke(ctx, accessToken)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrRevocationUnsupported):
		return ErrRevocationUnsupported
	default:
		return e.internalError("revoke_access_token", "", err)
	}
	e.metrics.Inc(MetricAccessTokenRevoked)
	e.emit(ctx, EventAccessTokenRevoked, "", true, nil, nil)
	return nil
}

// findAccount resolves a login identifier. Unknown identifiers yield
// ErrInvalidCredentials.
func (e *Engine) findAccount(ctx context.Context, identifier string) (directory.Account, error) {
	email := directory.NormalizeEmail(identifier)
	if email == "" {
		return directory.Account{}, ErrInvalidCredentials
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	account, err := e.directory.FindAccountByEmail(ctx, email)
	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, directory.ErrNotFound):
		return directory.Account{}, ErrInvalidCredentials
	default:
		return directory.Account{}, e.internalError("find_account", "", err)
	}
}

// checkSecret compares secret with cred, or with the placeholder hash when
// the account has no credential.
func (e *Engine) checkSecret(cred directory.Credential, found bool, secret string) bool {
	if !found {
		return e.passwords.VerifyAbsent(secret)
	}
	return e.passwords.Verify(cred, secret)
}

// checkLockout returns nil, a *LockedError or ErrInternal.
func (e *Engine) checkLockout(ctx context.Context, op, accountID string) error {
	err := e.lockout.CheckLockout(ctx, accountID)
	if err == nil {
		return nil
	}
	var locked *LockedError
	if errors.As(err, &locked) {
		e.metrics.Inc(MetricLoginLocked)
		e.emit(ctx, EventLoginLocked, accountID, false, locked, nil)
		return locked
	}
	return e.internalError(op, accountID, err)
}

// loginFailed counts a rejected secret and reports ErrInvalidCredentials.
func (e *Engine) loginFailed(ctx context.Context, accountID string) error {
	state, err := e.lockout.RecordFailure(ctx, accountID)
	if err != nil {
		return e.internalError("record_failure", accountID, err)
	}

	e.metrics.Inc(MetricLoginFailure)
	e.emit(ctx, EventLoginFailure, accountID, false, ErrInvalidCredentials, nil)

	if state.LockedAt(e.clock.Now()) && state.Failures == e.config.Lockout.Threshold {
		e.metrics.Inc(MetricAccountLocked)
		e.emit(ctx, EventAccountLocked, accountID, false, nil, map[string]string{
			"locked_until": state.LockedUntil.UTC().Format(time.RFC3339),
		})
	}
	return ErrInvalidCredentials
}

func (e *Engine) ensureNotExpired(ctx context.Context, accountID string) error {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	return e.passwords.EnsureNotExpired(ctx, accountID)
}

func (e *Engine) issuePair(ctx context.Context, account directory.Account) (TokenPair, error) {
	access, err := e.tokens.Issue(subjectOf(account))
	if err != nil {
		return TokenPair{}, err
	}
	rt, err := e.refresh.Create(ctx, account.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     rt.Token,
		RefreshExpiresAt: rt.ExpiresAt,
	}, nil
}
