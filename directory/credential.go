package directory

import (
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/audit"
)

// Credential is the secret-bearing record of an account. At most one
// credential per account is active at a time.
type Credential struct {
	ID            string     `db:"id" json:"id"`
	AccountID     string     `db:"account_id" json:"account_id"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	Active        bool       `db:"active" json:"active"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
}

func (c Credential) AuditKind() audit.Entity { return audit.EntityCredential }
func (c Credential) AuditID() string         { return c.ID }
func (c Credential) AuditSubject() string    { return c.AccountID }
func (c Credential) AuditActive() bool       { return c.Active }

// AuditFields lists the audited attributes. The hash is compared but never
// rendered.
func (c Credential) AuditFields() []audit.Field {
	return []audit.Field{
		{Name: "email", Value: c.Email},
		{Name: "password", Value: c.PasswordHash, Sensitive: true},
		{Name: audit.FieldActive, Value: strconv.FormatBool(c.Active)},
	}
}

// Deactivate returns a deactivated copy of c stamped at now.
func (c Credential) Deactivate(now time.Time) Credential {
	c.Active = false
	c.UpdatedAt = now
	c.DeactivatedAt = &now
	return c
}
