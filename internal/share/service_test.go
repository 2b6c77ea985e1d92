package share

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"env.share/internal/audit"
	"env.share/internal/envstore"
	"env.share/internal/models"
	"env.share/internal/store"
)

func newTestService(t *testing.T) (*Service, envstore.Store) {
	t.Helper()
	env := envstore.NewMemoryStore("test-master-key")
	recorder := audit.NewRecorder(log.New(io.Discard, "", 0))
	svc := NewService(store.NewMemoryStore(), env, recorder, Config{MinPasswordLength: 4})
	return svc, env
}

func seedEnv(t *testing.T, env envstore.Store, environmentID string) {
	t.Helper()
	ctx := context.Background()
	vars := []models.EnvVariable{
		{Key: "APP_ENV", Value: "production"},
		{Key: "DATABASE_URL", Value: "postgres://db", IsSecret: true},
	}
	for _, v := range vars {
		if err := env.Put(ctx, environmentID, v); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"missing environment", CreateInput{Password: "p@ss"}},
		{"short password", CreateInput{EnvironmentID: "env-1", Password: "p"}},
		{"negative max views", CreateInput{EnvironmentID: "env-1", Password: "p@ss", MaxViews: -1}},
		{"negative max downloads", CreateInput{EnvironmentID: "env-1", Password: "p@ss", MaxDownloads: -1}},
		{"bad allowlist entry", CreateInput{EnvironmentID: "env-1", Password: "p@ss", WhitelistedIPs: []string{"1.2.3.999"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCreateReturnsFreshActiveGrant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.Create(ctx, CreateInput{
		EnvironmentID:  "env-1",
		Password:       "p@ss",
		MaxViews:       3,
		MaxDownloads:   1,
		WhitelistedIPs: []string{" 1.2.3.4 ", ""},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if grant.Token == "" || grant.ID == "" {
		t.Fatal("grant must carry id and token")
	}
	if !grant.IsActive || grant.ViewCount != 0 || grant.DownloadCount != 0 {
		t.Fatalf("fresh grant state wrong: %+v", grant)
	}
	if grant.PasswordHash == "p@ss" {
		t.Fatal("password must be hashed")
	}
	if len(grant.WhitelistedIPs) != 1 || grant.WhitelistedIPs[0] != "1.2.3.4" {
		t.Fatalf("allowlist not normalized: %v", grant.WhitelistedIPs)
	}
}

func TestAccessDeniedReasons(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	seedEnv(t, env, "env-1")

	grant, err := svc.Create(ctx, CreateInput{
		EnvironmentID:  "env-1",
		Password:       "p@ss",
		WhitelistedIPs: []string{"1.2.3.4"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Access(ctx, "no-such-token", "p@ss", "1.2.3.4", models.ActionView); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Access(ctx, grant.Token, "p@ss", "9.9.9.9", models.ActionView); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Access(ctx, grant.Token, "wrong", "1.2.3.4", models.ActionView); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if err := svc.Revoke(ctx, grant.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Access(ctx, grant.Token, "p@ss", "1.2.3.4", models.ActionView); !errors.Is(err, store.ErrRevoked) {
		t.Fatalf("revoked grant must deny with ErrRevoked even with the right password, got %v", err)
	}
}

func TestAccessExpiredGrant(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	seedEnv(t, env, "env-1")

	past := time.Now().Add(-time.Second)
	grant, err := svc.Create(ctx, CreateInput{
		EnvironmentID: "env-1",
		Password:      "p@ss",
		ExpiresAt:     &past,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Access(ctx, grant.Token, "p@ss", "1.2.3.4", models.ActionView); !errors.Is(err, store.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestOneTimeEndToEnd(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	seedEnv(t, env, "env-1")

	grant, err := svc.Create(ctx, CreateInput{
		EnvironmentID: "env-1",
		Password:      "p@ss",
		MaxViews:      1,
		OneTime:       true,
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := svc.Access(ctx, grant.Token, "p@ss", "1.2.3.4", models.ActionView)
	if err != nil {
		t.Fatalf("first view must succeed: %v", err)
	}
	if len(result.Variables) != 2 {
		t.Fatalf("expected 2 variables, got %d", len(result.Variables))
	}
	if result.Variables[1].Value != "postgres://db" {
		t.Fatalf("secret value must be returned decrypted, got %q", result.Variables[1].Value)
	}
	if result.Grant.IsActive {
		t.Fatal("one-time grant must deactivate after the first view")
	}

	_, err = svc.Access(ctx, grant.Token, "p@ss", "1.2.3.4", models.ActionView)
	if !errors.Is(err, store.ErrRevoked) && !errors.Is(err, store.ErrExhausted) {
		t.Fatalf("second view must fail revoked or exhausted, got %v", err)
	}
	_, err = svc.Access(ctx, grant.Token, "p@ss", "1.2.3.4", models.ActionDownload)
	if !errors.Is(err, store.ErrRevoked) {
		t.Fatalf("download after one-time consumption must fail, got %v", err)
	}
}

func TestConcurrentOneTimeViewAdmitsOne(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	seedEnv(t, env, "env-1")

	grant, err := svc.Create(ctx, CreateInput{
		EnvironmentID: "env-1",
		Password:      "p@ss",
		OneTime:       true,
	})
	if err != nil {
		t.Fatal(err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Access(ctx, grant.Token, "p@ss", "1.2.3.4", models.ActionView)
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			} else if !errors.Is(err, store.ErrRevoked) && !errors.Is(err, store.ErrExhausted) {
				t.Errorf("losing attempt failed with unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Fatalf("one-time grant admitted %d concurrent views, want exactly 1", admitted)
	}
}

func TestDownloadQuotaIndependentOfViews(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	seedEnv(t, env, "env-1")

	grant, err := svc.Create(ctx, CreateInput{
		EnvironmentID: "env-1",
		Password:      "p@ss",
		MaxViews:      1,
		MaxDownloads:  1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Access(ctx, grant.Token, "p@ss", "1.2.3.4", models.ActionView); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Access(ctx, grant.Token, "p@ss", "1.2.3.4", models.ActionView); !errors.Is(err, store.ErrExhausted) {
		t.Fatalf("second view must exhaust, got %v", err)
	}
	if _, err := svc.Access(ctx, grant.Token, "p@ss", "1.2.3.4", models.ActionDownload); err != nil {
		t.Fatalf("download quota is separate from views: %v", err)
	}
	if _, err := svc.Access(ctx, grant.Token, "p@ss", "1.2.3.4", models.ActionDownload); !errors.Is(err, store.ErrExhausted) {
		t.Fatalf("second download must exhaust, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.Create(ctx, CreateInput{EnvironmentID: "env-1", Password: "p@ss"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Revoke(ctx, grant.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Revoke(ctx, grant.ID); err != nil {
		t.Fatalf("second revoke must be a no-op success, got %v", err)
	}
}

func TestRenderEnvFile(t *testing.T) {
	got := RenderEnvFile([]models.EnvVariable{
		{Key: "APP_ENV", Value: "production"},
		{Key: "DATABASE_URL", Value: "postgres://db", IsSecret: true},
	})
	want := "APP_ENV=production\nDATABASE_URL=postgres://db\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if RenderEnvFile(nil) != "" {
		t.Fatal("empty variable set must render empty content")
	}
}
