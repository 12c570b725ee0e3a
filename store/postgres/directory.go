package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/MrEthical07/authcore/directory"
)

const accountColumns = `id, first_name, last_name, birth_date, email, phone, role, active, created_at, updated_at, deactivated_at`

const credentialColumns = `id, account_id, email, password_hash, active, created_at, updated_at, deactivated_at`

// Directory is a directory.Store over the accounts and credentials tables.
type Directory struct {
	db *sqlx.DB
}

func NewDirectory(db *sqlx.DB) *Directory { return &Directory{db: db} }

const insertAccount = `INSERT INTO accounts (` + accountColumns + `)
	VALUES (:id, :first_name, :last_name, :birth_date, :email, :phone, :role, :active, :created_at, :updated_at, :deactivated_at)`

const insertCredential = `INSERT INTO credentials (` + credentialColumns + `)
	VALUES (:id, :account_id, :email, :password_hash, :active, :created_at, :updated_at, :deactivated_at)`

func (d *Directory) CreateAccount(ctx context.Context, a directory.Account) error {
	if _, err := d.db.NamedExecContext(ctx, insertAccount, a); err != nil {
		return directoryError(err)
	}
	return nil
}

// Register inserts the account and its credential in one transaction.
func (d *Directory) Register(ctx context.Context, a directory.Account, c directory.Credential) (err error) {
	if c.AccountID != a.ID {
		return directory.ErrInvalid
	}
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, insertAccount, a); err != nil {
		return directoryError(err)
	}
	if _, err = tx.NamedExecContext(ctx, insertCredential, c); err != nil {
		return directoryError(err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	return nil
}

func (d *Directory) GetAccount(ctx context.Context, id string) (directory.Account, error) {
	var a directory.Account
	err := d.db.GetContext(ctx, &a, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	if err != nil {
		return directory.Account{}, directoryError(err)
	}
	return a, nil
}

func (d *Directory) FindAccountByEmail(ctx context.Context, email string) (directory.Account, error) {
	var a directory.Account
	err := d.db.GetContext(ctx, &a, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	if err != nil {
		return directory.Account{}, directoryError(err)
	}
	return a, nil
}

func (d *Directory) UpdateAccount(ctx context.Context, a directory.Account) error {
	q := `UPDATE accounts SET
		    first_name = :first_name, last_name = :last_name, birth_date = :birth_date,
		    email = :email, phone = :phone, role = :role, active = :active,
		    updated_at = :updated_at, deactivated_at = :deactivated_at
		  WHERE id = :id`
	res, err := d.db.NamedExecContext(ctx, q, a)
	if err != nil {
		return directoryError(err)
	}
	return requireRow(res)
}

func (d *Directory) CreateCredential(ctx context.Context, c directory.Credential) error {
	if _, err := d.db.NamedExecContext(ctx, insertCredential, c); err != nil {
		return directoryError(err)
	}
	return nil
}

func (d *Directory) GetCredential(ctx context.Context, accountID string) (directory.Credential, error) {
	var c directory.Credential
	q := `SELECT ` + credentialColumns + ` FROM credentials
		  WHERE account_id = $1
		  ORDER BY created_at DESC, seq DESC
		  LIMIT 1`
	if err := d.db.GetContext(ctx, &c, q, accountID); err != nil {
		return directory.Credential{}, directoryError(err)
	}
	return c, nil
}

func (d *Directory) UpdateCredential(ctx context.Context, c directory.Credential) error {
	q := `UPDATE credentials SET
		    email = :email, password_hash = :password_hash, active = :active,
		    updated_at = :updated_at, deactivated_at = :deactivated_at
		  WHERE id = :id AND account_id = :account_id`
	res, err := d.db.NamedExecContext(ctx, q, c)
	if err != nil {
		return directoryError(err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	if n == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func directoryError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return directory.ErrNotFound
	case isUniqueViolation(err):
		return directory.ErrDuplicate
	case isForeignKeyViolation(err):
		return directory.ErrNotFound
	}
	return fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
}
