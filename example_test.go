package authcore_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store/memory"
)

func newExampleEngine() *authcore.Engine {
	st := memory.New(nil)

	cfg := authcore.DefaultConfig()
	cfg.Token.SigningKey = []byte("example-signing-key-0123456789abcdef")
	cfg.Password.Hasher = password.HasherConfig{Algorithm: password.AlgorithmBcrypt, BcryptCost: 4}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithDirectory(st.Directory).
		WithAccessControlStore(st.AccessControl).
		WithRefreshStore(st.RefreshTokens).
		WithHistoryStore(st.History).
		WithDenylist(st.Denylist).
		Build()
	if err != nil {
		panic(err)
	}
	return engine
}

func ExampleEngine_Login() {
	engine := newExampleEngine()
	defer engine.Close()
	ctx := context.Background()

	_, err := engine.RegisterAccount(ctx, authcore.NewAccount{
		FirstName: "Alice",
		Email:     "Alice@Example.com",
		Phone:     "+15550100",
		Password:  "correct-horse-battery",
	}, "")
	if err != nil {
		panic(err)
	}

	pair, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery")
	if err != nil {
		panic(err)
	}
	id, err := engine.VerifyAccessToken(ctx, pair.AccessToken)
	if err != nil {
		panic(err)
	}
	fmt.Println(id.Email, id.Role)

	_, err = engine.Login(ctx, "alice@example.com", "wrong-password")
	fmt.Println(errors.Is(err, authcore.ErrInvalidCredentials), authcore.Classify(err))
	// Output:
	// alice@example.com USER
	// true policy_rejection
}

func ExampleEngine_RefreshSession() {
	engine := newExampleEngine()
	defer engine.Close()
	ctx := context.Background()

	if _, err := engine.RegisterAccount(ctx, authcore.NewAccount{
		Email:    "bob@example.com",
		Phone:    "+15550101",
		Password: "correct-horse-battery",
	}, ""); err != nil {
		panic(err)
	}
	pair, err := engine.Login(ctx, "bob@example.com", "correct-horse-battery")
	if err != nil {
		panic(err)
	}

	next, err := engine.RefreshSession(ctx, pair.RefreshToken)
	if err != nil {
		panic(err)
	}
	_, err = engine.RefreshSession(ctx, pair.RefreshToken)
	fmt.Println(next.RefreshToken != pair.RefreshToken, errors.Is(err, authcore.ErrInvalidToken))
	// Output: true true
}
