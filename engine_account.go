package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/password"
)

// RegisterAccount creates an active account and its credential and records
// a CREATION entry for each. The credential entry starts the password age.
// Account and credential are stored atomically; if recording history fails
// afterwards the account exists with an expired password and ErrInternal is
// returned. actorID may be empty for self-registration, in which case the new
// account is recorded as its own actor.
func (e *Engine) RegisterAccount(ctx context.Context, in NewAccount, actorID string) (Account, error) {
	if e == nil {
		return Account{}, ErrEngineNotReady
	}

	if err := password.CheckSecret(in.Password); err != nil {
		return Account{}, ErrPasswordPolicy
	}

	now := e.clock.Now().UTC()
	account := directory.Account{
		ID:        uuid.NewString(),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		BirthDate: in.BirthDate,
		Email:     directory.NormalizeEmail(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Role:      in.Role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if account.Role == "" {
		account.Role = RoleUser
	}
	if err := account.Validate(); err != nil {
		return Account{}, ErrInvalidAccount
	}
	if actorID == "" {
		actorID = account.ID
	}

	hash, err := e.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrPolicy) {
			return Account{}, ErrPasswordPolicy
		}
		return Account{}, e.internalError("register", "", err)
	}
	cred := directory.Credential{
		ID:           uuid.NewString(),
		AccountID:    account.ID,
		Email:        account.Email,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	if err := e.directory.Register(ctx, account, cred); err != nil {
		if errors.Is(err, directory.ErrDuplicate) {
			e.metrics.Inc(MetricAccountCreationDuplicate)
			return Account{}, ErrDuplicate
		}
		return Account{}, e.internalError("register", account.ID, err)
	}
	// The records exist from here on. Without the credential's CREATION
	// entry the password counts as expired, and RenewPassword restores it.
	if _, err := e.history.RecordCreation(ctx, account, actorID); err != nil {
		return Account{}, e.internalError("register", account.ID, err)
	}
	if _, err := e.history.RecordCreation(ctx, cred, actorID); err != nil {
		return Account{}, e.internalError("register", account.ID, err)
	}

	e.metrics.Inc(MetricAccountCreated)
	e.emit(ctx, EventAccountCreated, account.ID, true, nil, map[string]string{"actor_id": actorID})
	return account, nil
}

// UpdateAccount applies patch and records the changed fields. A changed
// email is copied onto the credential and recorded there as well. Patches
// that change nothing write nothing.
func (e *Engine) UpdateAccount(ctx context.Context, accountID string, patch AccountPatch, actorID string) (Account, error) {
	if e == nil {
		return Account{}, ErrEngineNotReady
	}

	before, err := e.getAccount(ctx, "update_account", accountID)
	if err != nil {
		return Account{}, err
	}
	after := patch.Apply(before)
	if err := after.Validate(); err != nil {
		return Account{}, ErrInvalidAccount
	}
	if !after.Active {
		return Account{}, ErrAccountDisabled
	}
	if len(audit.Diff(before, after)) == 0 {
		return before, nil
	}
	after.UpdatedAt = e.clock.Now().UTC()

	ctx, cancel := e.bound(ctx)
	defer cancel()

	if err := e.directory.UpdateAccount(ctx, after); err != nil {
		if errors.Is(err, directory.ErrDuplicate) {
			return Account{}, ErrDuplicate
		}
		return Account{}, e.internalError("update_account", accountID, err)
	}
	if _, _, err := e.history.Record(ctx, before, after, actorID); err != nil {
		return Account{}, e.internalError("update_account", accountID, err)
	}

	if after.Email != before.Email {
		if err := e.syncCredentialEmail(ctx, after, actorID); err != nil {
			return Account{}, err
		}
	}

	e.metrics.Inc(MetricAccountUpdated)
	e.emit(ctx, EventAccountUpdated, accountID, true, nil, map[string]string{"actor_id": actorID})
	return after, nil
}

func (e *Engine) syncCredentialEmail(ctx context.Context, account directory.Account, actorID string) error {
	before, err := e.directory.GetCredential(ctx, account.ID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil
	}
	if err != nil {
		return e.internalError("update_account", account.ID, err)
	}
	after := before
	after.Email = account.Email
	after.UpdatedAt = account.UpdatedAt
	if err := e.directory.UpdateCredential(ctx, after); err != nil {
		return e.internalError("update_account", account.ID, err)
	}
	if _, _, err := e.history.Record(ctx, before, after, actorID); err != nil {
		return e.internalError("update_account", account.ID, err)
	}
	return nil
}

// DeactivateAccount soft-deletes the account and its credential, records a
// DEACTIVATION entry for each and ends every refresh session. Deactivating
// an inactive account is a no-op.
func (e *Engine) DeactivateAccount(ctx context.Context, accountID, actorID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	before, err := e.getAccount(ctx, "deactivate_account", accountID)
	if err != nil {
		return err
	}
	if !before.Active {
		return nil
	}

	now := e.clock.Now().UTC()
	after := before
	after.Active = false
	after.UpdatedAt = now
	after.DeactivatedAt = &now

	ctx, cancel := e.bound(ctx)
	defer cancel()

	if err := e.directory.UpdateAccount(ctx, after); err != nil {
		return e.internalError("deactivate_account", accountID, err)
	}
	if _, _, err := e.history.Record(ctx, before, after, actorID); err != nil {
		return e.internalError("deactivate_account", accountID, err)
	}

	cred, err := e.directory.GetCredential(ctx, accountID)
	switch {
	case errors.Is(err, directory.ErrNotFound):
	case err != nil:
		return e.internalError("deactivate_account", accountID, err)
	case cred.Active:
		credAfter := cred.Deactivate(now)
		if err := e.directory.UpdateCredential(ctx, credAfter); err != nil {
			return e.internalError("deactivate_account", accountID, err)
		}
		if _, _, err := e.history.Record(ctx, cred, credAfter, actorID); err != nil {
			return e.internalError("deactivate_account", accountID, err)
		}
	}

	n, err := e.refresh.RevokeAll(ctx, accountID)
	if err != nil {
		return e.internalError("deactivate_account", accountID, err)
	}

	e.logger.Info("account deactivated",
		zap.String("account_id", accountID),
		zap.String("actor_id", actorID),
		zap.Int("revoked_sessions", n),
	)
	e.metrics.Inc(MetricAccountDeactivated)
	e.emit(ctx, EventAccountDeactivated, accountID, true, nil, map[string]string{"actor_id": actorID})
	return nil
}

// UnlockAccount clears the failure counter and any active lock.
func (e *Engine) UnlockAccount(ctx context.Context, accountID, actorID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if _, err := e.getAccount(ctx, "unlock_account", accountID); err != nil {
		return err
	}
	if err := e.lockout.ResetFailures(ctx, accountID); err != nil {
		return e.internalError("unlock_account", accountID, err)
	}
	e.metrics.Inc(MetricAccountUnlocked)
	e.emit(ctx, EventAccountUnlocked, accountID, true, nil, map[string]string{"actor_id": actorID})
	return nil
}

// LockoutStatus returns the stored failure state of accountID.
func (e *Engine) LockoutStatus(ctx context.Context, accountID string) (LockoutState, error) {
	if e == nil {
		return LockoutState{}, ErrEngineNotReady
	}
	if _, err := e.getAccount(ctx, "lockout_status", accountID); err != nil {
		return LockoutState{}, err
	}
	st, err := e.lockout.Status(ctx, accountID)
	if err != nil {
		return LockoutState{}, e.internalError("lockout_status", accountID, err)
	}
	return st, nil
}

func (e *Engine) Account(ctx context.Context, accountID string) (Account, error) {
	if e == nil {
		return Account{}, ErrEngineNotReady
	}
	return e.getAccount(ctx, "get_account", accountID)
}

// AccountHistory lists every history entry of accountID, oldest first.
func (e *Engine) AccountHistory(ctx context.Context, accountID string) ([]HistoryEntry, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if _, err := e.getAccount(ctx, "account_history", accountID); err != nil {
		return nil, err
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	entries, err := e.history.History(ctx, accountID)
	if err != nil {
		return nil, e.internalError("account_history", accountID, err)
	}
	return entries, nil
}
