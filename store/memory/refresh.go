package memory

import (
	"context"
	"sync"

	"github.com/MrEthical07/authcore/refresh"
)

// RefreshTokens is an in-memory refresh.Store.
type RefreshTokens struct {
	mu      sync.Mutex
	records map[string]refresh.Record
}

func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{records: make(map[string]refresh.Record)}
}

func (s *RefreshTokens) Insert(ctx context.Context, r refresh.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[r.TokenHash] = r
	return nil
}

func (s *RefreshTokens) Find(ctx context.Context, tokenHash string) (refresh.Record, error) {
	if err := ctx.Err(); err != nil {
		return refresh.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[tokenHash]
	if !ok {
		return refresh.Record{}, refresh.ErrNotFound
	}
	return r, nil
}

func (s *RefreshTokens) Rotate(ctx context.Context, oldHash string, expectedRotations int, next refresh.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[oldHash]
	if !ok {
		return refresh.ErrNotFound
	}
	if cur.RotationCount != expectedRotations {
		return refresh.ErrRotationConflict
	}
	delete(s.records, oldHash)
	s.records[next.TokenHash] = next
	return nil
}

func (s *RefreshTokens) Delete(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, tokenHash)
	return nil
}

func (s *RefreshTokens) DeleteByAccount(ctx context.Context, accountID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for h, r := range s.records {
		if r.AccountID == accountID {
			delete(s.records, h)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *RefreshTokens) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
