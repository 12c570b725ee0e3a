package memory

import (
	"context"
	"sync"

	"github.com/MrEthical07/authcore/directory"
)

// Directory is an in-memory directory.Store.
type Directory struct {
	mu          sync.RWMutex
	accounts    map[string]directory.Account
	byEmail     map[string]string
	byPhone     map[string]string
	credentials map[string][]directory.Credential
}

func NewDirectory() *Directory {
	return &Directory{
		accounts:    make(map[string]directory.Account),
		byEmail:     make(map[string]string),
		byPhone:     make(map[string]string),
		credentials: make(map[string][]directory.Credential),
	}
}

func (d *Directory) CreateAccount(ctx context.Context, a directory.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.accountFree(a); err != nil {
		return err
	}
	d.putAccount(a)
	return nil
}

// Register stores a and its first credential c under one lock.
func (d *Directory) Register(ctx context.Context, a directory.Account, c directory.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.AccountID != a.ID {
		return directory.ErrInvalid
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.accountFree(a); err != nil {
		return err
	}
	d.putAccount(a)
	d.credentials[a.ID] = []directory.Credential{c}
	return nil
}

func (d *Directory) accountFree(a directory.Account) error {
	if _, ok := d.accounts[a.ID]; ok {
		return directory.ErrDuplicate
	}
	if _, ok := d.byEmail[a.Email]; ok {
		return directory.ErrDuplicate
	}
	if _, ok := d.byPhone[a.Phone]; ok {
		return directory.ErrDuplicate
	}
	return nil
}

func (d *Directory) putAccount(a directory.Account) {
	d.accounts[a.ID] = a
	d.byEmail[a.Email] = a.ID
	d.byPhone[a.Phone] = a.ID
}

func (d *Directory) GetAccount(ctx context.Context, id string) (directory.Account, error) {
	if err := ctx.Err(); err != nil {
		return directory.Account{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.accounts[id]
	if !ok {
		return directory.Account{}, directory.ErrNotFound
	}
	return a, nil
}

func (d *Directory) FindAccountByEmail(ctx context.Context, email string) (directory.Account, error) {
	if err := ctx.Err(); err != nil {
		return directory.Account{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return directory.Account{}, directory.ErrNotFound
	}
	return d.accounts[id], nil
}

func (d *Directory) UpdateAccount(ctx context.Context, a directory.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.accounts[a.ID]
	if !ok {
		return directory.ErrNotFound
	}
	if owner, taken := d.byEmail[a.Email]; taken && owner != a.ID {
		return directory.ErrDuplicate
	}
	if owner, taken := d.byPhone[a.Phone]; taken && owner != a.ID {
		return directory.ErrDuplicate
	}
	delete(d.byEmail, prev.Email)
	delete(d.byPhone, prev.Phone)
	d.accounts[a.ID] = a
	d.byEmail[a.Email] = a.ID
	d.byPhone[a.Phone] = a.ID
	return nil
}

func (d *Directory) CreateCredential(ctx context.Context, c directory.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.accounts[c.AccountID]; !ok {
		return directory.ErrNotFound
	}
	list := d.credentials[c.AccountID]
	for _, existing := range list {
		if existing.ID == c.ID {
			return directory.ErrDuplicate
		}
		if c.Active && existing.Active {
			return directory.ErrDuplicate
		}
	}
	d.credentials[c.AccountID] = append(list, c)
	return nil
}

func (d *Directory) GetCredential(ctx context.Context, accountID string) (directory.Credential, error) {
	if err := ctx.Err(); err != nil {
		return directory.Credential{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := d.credentials[accountID]
	if len(list) == 0 {
		return directory.Credential{}, directory.ErrNotFound
	}
	return list[len(list)-1], nil
}

func (d *Directory) UpdateCredential(ctx context.Context, c directory.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.credentials[c.AccountID]
	for i := range list {
		if list[i].ID == c.ID {
			list[i] = c
			return nil
		}
	}
	return directory.ErrNotFound
}
