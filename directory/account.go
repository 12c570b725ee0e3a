package directory

import (
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/audit"
)

// Role is the coarse authorization role carried in access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

const birthDateLayout = "2006-01-02"

// Account is a directory entry. Deactivation is soft: Active flips to false
// and DeactivatedAt is set.
type Account struct {
	ID            string     `db:"id" json:"id"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	BirthDate     *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Email         string     `db:"email" json:"email"`
	Phone         string     `db:"phone" json:"phone"`
	Role          Role       `db:"role" json:"role"`
	Active        bool       `db:"active" json:"active"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
}

// Validate checks the attributes every stored account must carry.
func (a Account) Validate() error {
	switch {
	case strings.TrimSpace(a.ID) == "":
		return ErrInvalid
	case a.Email == "" || a.Email != NormalizeEmail(a.Email):
		return ErrInvalid
	case strings.TrimSpace(a.Phone) == "":
		return ErrInvalid
	case !a.Role.Valid():
		return ErrInvalid
	}
	return nil
}

func (a Account) AuditKind() audit.Entity { return audit.EntityAccount }
func (a Account) AuditID() string         { return a.ID }
func (a Account) AuditSubject() string    { return a.ID }
func (a Account) AuditActive() bool       { return a.Active }

// AuditFields lists the audited attributes in a fixed order.
func (a Account) AuditFields() []audit.Field {
	var birth string
	if a.BirthDate != nil {
		birth = a.BirthDate.Format(birthDateLayout)
	}
	return []audit.Field{
		{Name: "first_name", Value: a.FirstName},
		{Name: "last_name", Value: a.LastName},
		{Name: "birth_date", Value: birth},
		{Name: "email", Value: a.Email},
		{Name: "phone", Value: a.Phone},
		{Name: "role", Value: string(a.Role)},
		{Name: audit.FieldActive, Value: strconv.FormatBool(a.Active)},
	}
}

// AccountPatch carries a partial account update. Nil fields are left as is.
type AccountPatch struct {
	FirstName *string
	LastName  *string
	BirthDate *time.Time
	Email     *string
	Phone     *string
	Role      *Role
}

// Apply returns a copy of a with the patch applied.
func (p AccountPatch) Apply(a Account) Account {
	if p.FirstName != nil {
		a.FirstName = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		a.LastName = strings.TrimSpace(*p.LastName)
	}
	if p.BirthDate != nil {
		d := *p.BirthDate
		a.BirthDate = &d
	}
	if p.Email != nil {
		a.Email = NormalizeEmail(*p.Email)
	}
	if p.Phone != nil {
		a.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Role != nil {
		a.Role = *p.Role
	}
	return a
}
