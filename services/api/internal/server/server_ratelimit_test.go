package server

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"wildwatch/internal/usertoken"
	"wildwatch/pkg/store"
	"wildwatch/services/api/internal/app"
	"wildwatch/services/api/internal/ingress"
)

func TestLoginRateLimit(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tokens, err := usertoken.New(key, "kid-test", usertoken.Config{})
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	a, err := app.New(app.Config{Store: store.NewMemoryStore(), Tokens: tokens})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := a.SeedUsers(adminPassword, userPassword); err != nil {
		t.Fatalf("seed: %v", err)
	}
	receiver, err := ingress.New(ingress.Config{StagingDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := New(Config{
		App:                        a,
		Receiver:                   receiver,
		Redis:                      client,
		RegisterRateLimitPerMinute: 10,
		LoginRateLimitPerMinute:    1,
		UpdateRateLimitPerMinute:   10,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	body := []byte(`{"email":"user@example.com","password":"Us3r!pass"}`)
	resp1, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("first login request failed: %v", err)
	}
	resp1.Body.Close()
	if resp1.StatusCode != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", resp1.StatusCode)
	}

	resp2, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("second login request failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp2.StatusCode)
	}
	if resp2.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	// Registration has its own bucket.
	reg := []byte(`{"email":"new@example.com","password":"N3w!passw"}`)
	resp3, err := http.Post(srv.URL+"/api/auth/register", "application/json", bytes.NewReader(reg))
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusCreated {
		t.Fatalf("register expected 201, got %d", resp3.StatusCode)
	}
}
