package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/password"
)

// ChangePassword replaces the secret of accountID after checking current.
// It renews the password age, records a PASSWORD_CHANGE entry attributed to
// the account itself and ends every refresh session of the account.
// Outstanding access tokens stay valid until they expire.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if _, err := e.getAccount(ctx, "change_password", accountID); err != nil {
		return err
	}
	cred, err := e.getCredential(ctx, "change_password", accountID)
	if err != nil {
		return err
	}
	return e.changePassword(ctx, cred, current, next, false)
}

// RenewPassword changes the secret of the account named by identifier
// without an access token. It is the way out of ErrPasswordExpired, so it is
// guarded by the same lockout policy as Login.
func (e *Engine) RenewPassword(ctx context.Context, identifier, current, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.findAccount(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.passwords.VerifyAbsent(current)
		}
		return err
	}
	if err := e.checkLockout(ctx, "renew_password", account.ID); err != nil {
		return err
	}

	cred, err := e.getCredential(ctx, "renew_password", account.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if !e.checkSecret(cred, err == nil, current) {
		return e.loginFailed(ctx, account.ID)
	}
	if !account.Active {
		return ErrAccountDisabled
	}
	if err := e.lockout.ResetFailures(ctx, account.ID); err != nil {
		return e.internalError("renew_password", account.ID, err)
	}
	return e.changePassword(ctx, cred, current, next, true)
}

// changePassword applies the change rules. verified reports that current
// was already checked against cred.
func (e *Engine) changePassword(ctx context.Context, cred directory.Credential, current, next string, verified bool) error {
	accountID := cred.AccountID
	fail := func(err error) error {
		e.emit(ctx, EventPasswordChangeFailed, accountID, false, err, nil)
		return err
	}

	if !cred.Active {
		return fail(ErrAccountDisabled)
	}
	if !verified && !e.passwords.Verify(cred, current) {
		e.metrics.Inc(MetricPasswordChangeInvalidOld)
		return fail(ErrWrongCurrentPassword)
	}
	if current == next {
		e.metrics.Inc(MetricPasswordChangeReuseRejected)
		return fail(ErrPasswordReuse)
	}
	if err := password.CheckSecret(next); err != nil {
		return fail(ErrPasswordPolicy)
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	err := e.passwords.ChangePassword(ctx, accountID, next, accountID)
	switch {
	case err == nil:
	case errors.Is(err, password.ErrPolicy):
		return fail(ErrPasswordPolicy)
	case errors.Is(err, password.ErrCredentialInactive):
		return fail(ErrAccountDisabled)
	case errors.Is(err, directory.ErrNotFound):
		return fail(ErrNotFound)
	default:
		return e.internalError("change_password", accountID, err)
	}

	e.metrics.Inc(MetricPasswordChangeSuccess)
	e.emit(ctx, EventPasswordChanged, accountID, true, nil, nil)
	return nil
}
