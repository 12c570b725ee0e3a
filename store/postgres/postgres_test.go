package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/refresh"
)

const testDatabaseEnv = "AUTHCORE_TEST_DATABASE_URL"

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv(testDatabaseEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	cfg := Config{DSN: dsn}
	if err := Migrate(cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testAccount(now time.Time) directory.Account {
	id := uuid.NewString()
	return directory.Account{
		ID:        id,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     id + "@example.com",
		Phone:     "+1-" + id,
		Role:      directory.RoleUser,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	newTestDB(t)
	cfg := Config{DSN: os.Getenv(testDatabaseEnv)}
	if err := Migrate(cfg); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	v, dirty, err := Version(cfg)
	if err != nil || dirty || v < 1 {
		t.Fatalf("unexpected version %d dirty=%v err=%v", v, dirty, err)
	}
}

func TestDirectoryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	d := NewDirectory(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	a := testAccount(now)
	if err := d.CreateAccount(ctx, a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	dup := testAccount(now)
	dup.Email = a.Email
	if err := d.CreateAccount(ctx, dup); !errors.Is(err, directory.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := d.FindAccountByEmail(ctx, a.Email)
	if err != nil || got.ID != a.ID || got.Role != directory.RoleUser {
		t.Fatalf("find by email: %+v err=%v", got, err)
	}

	a.FirstName = "Augusta"
	if err := d.UpdateAccount(ctx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = d.GetAccount(ctx, a.ID)
	if got.FirstName != "Augusta" {
		t.Fatalf("update not persisted: %+v", got)
	}

	if _, err := d.GetAccount(ctx, uuid.NewString()); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	c := directory.Credential{
		ID: uuid.NewString(), AccountID: a.ID, Email: a.Email,
		PasswordHash: "hash-1", Active: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := d.CreateCredential(ctx, c); err != nil {
		t.Fatalf("create credential: %v", err)
	}
	second := c
	second.ID = uuid.NewString()
	if err := d.CreateCredential(ctx, second); !errors.Is(err, directory.ErrDuplicate) {
		t.Fatalf("second active credential must be rejected, got %v", err)
	}

	c.PasswordHash = "hash-2"
	if err := d.UpdateCredential(ctx, c); err != nil {
		t.Fatalf("update credential: %v", err)
	}
	gotCred, err := d.GetCredential(ctx, a.ID)
	if err != nil || gotCred.PasswordHash != "hash-2" {
		t.Fatalf("credential: %+v err=%v", gotCred, err)
	}
}

func TestRegisterIsAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	d := NewDirectory(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	a := testAccount(now)
	c := directory.Credential{
		ID: uuid.NewString(), AccountID: a.ID, Email: a.Email,
		PasswordHash: "hash-1", Active: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := d.Register(ctx, a, c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got, err := d.GetCredential(ctx, a.ID); err != nil || got.ID != c.ID {
		t.Fatalf("credential: %+v err=%v", got, err)
	}

	// Reusing the credential id fails the second insert after the first
	// one succeeded inside the transaction.
	b := testAccount(now)
	clash := c
	clash.AccountID = b.ID
	if err := d.Register(ctx, b, clash); !errors.Is(err, directory.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := d.GetAccount(ctx, b.ID); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("account must be rolled back, got %v", err)
	}
}

func TestAccessControlUpsert(t *testing.T) {
	db := newTestDB(t)
	s := NewAccessControl(db)
	ctx := context.Background()
	id := uuid.NewString()
	until := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Microsecond)

	for i := 1; i <= 5; i++ {
		st, err := s.Increment(ctx, id, 5, until)
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if st.Failures != i {
			t.Fatalf("increment %d: failures=%d", i, st.Failures)
		}
		if (i < 5) != (st.LockedUntil == nil) {
			t.Fatalf("increment %d: unexpected lock %v", i, st.LockedUntil)
		}
	}
	st, _ := s.Increment(ctx, id, 5, until)
	if st.Failures != 5 || !st.LockedUntil.Equal(until) {
		t.Fatalf("expected capped failures, got %+v", st)
	}

	if err := s.Reset(ctx, id); err != nil {
		t.Fatalf("reset: %v", err)
	}
	st, _ = s.Get(ctx, id)
	if st.Failures != 0 || st.LockedUntil != nil {
		t.Fatalf("expected cleared state, got %+v", st)
	}
}

func TestRefreshRotateSingleWinner(t *testing.T) {
	db := newTestDB(t)
	s := NewRefreshTokens(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	account := uuid.NewString()

	old := refresh.Record{TokenHash: uuid.NewString(), AccountID: account, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := s.Insert(ctx, old); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := old
			next.TokenHash = uuid.NewString()
			next.RotationCount = 1
			errs <- s.Rotate(ctx, old.TokenHash, 0, next)
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, refresh.ErrNotFound):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}

	n2, err := s.DeleteByAccount(ctx, account)
	if err != nil || n2 != 1 {
		t.Fatalf("expected one surviving record, got %d err=%v", n2, err)
	}
}

func TestHistoryLatestByMovement(t *testing.T) {
	db := newTestDB(t)
	h := NewHistory(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	subject := uuid.NewString()

	entries := []audit.Entry{
		{ID: uuid.NewString(), Seq: 1, SubjectID: subject, Entity: audit.EntityCredential, EntityID: "c1", Movement: audit.MovementCreation, CreatedAt: now},
		{ID: uuid.NewString(), Seq: 2, SubjectID: subject, Entity: audit.EntityCredential, EntityID: "c1", Movement: audit.MovementPasswordChange, CreatedAt: now},
		{ID: uuid.NewString(), Seq: 3, SubjectID: subject, Entity: audit.EntityAccount, EntityID: subject, Movement: audit.MovementDataUpdate, CreatedAt: now},
	}
	for _, e := range entries {
		if err := h.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := h.Latest(ctx, subject, audit.MovementCreation, audit.MovementPasswordChange)
	if err != nil || got.Seq != 2 {
		t.Fatalf("expected password change entry, got %+v err=%v", got, err)
	}
	got, _ = h.Latest(ctx, subject)
	if got.Seq != 3 {
		t.Fatalf("expected newest entry, got %+v", got)
	}
	if _, err := h.Latest(ctx, uuid.NewString()); !errors.Is(err, audit.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := h.List(ctx, subject)
	if err != nil || len(list) != 3 || list[0].Seq != 1 {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
}

func TestHistoryRejectsUnknownMovement(t *testing.T) {
	db := newTestDB(t)
	h := NewHistory(db)
	subject := uuid.NewString()

	err := h.Append(context.Background(), audit.Entry{
		ID: uuid.NewString(), SubjectID: subject, Entity: audit.EntityAccount, EntityID: subject,
		Movement: audit.Movement("PURGE"), CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, audit.ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
	if _, err := h.Latest(context.Background(), subject); !errors.Is(err, audit.ErrNotFound) {
		t.Fatalf("expected no stored entry, got %v", err)
	}
}

func TestDenylistExpiry(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFake(time.Now().UTC())
	d := NewDenylist(db, clk)
	ctx := context.Background()
	jti := uuid.NewString()

	if err := d.Deny(ctx, jti, clk.Now().Add(time.Minute)); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if denied, err := d.Denied(ctx, jti); err != nil || !denied {
		t.Fatalf("expected denied, got %v err=%v", denied, err)
	}
	clk.Advance(2 * time.Minute)
	if denied, _ := d.Denied(ctx, jti); denied {
		t.Fatal("entry should lapse with the token")
	}
	if _, err := d.PurgeExpired(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}
}
