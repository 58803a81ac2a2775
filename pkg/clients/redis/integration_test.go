//go:build integration

// Integration tests for the Redis client that require Docker. They are
// gated behind the "integration" build tag and use testcontainers to start
// a disposable Redis instance.
//
// Run locally with:
//
//	go test -v -race -tags=integration ./pkg/clients/redis/...
package redis_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/secretforge/secretforge-core/pkg/clients/redis"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupContainer starts a Redis 7 container and returns a connected Client.
func setupContainer(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "docker.io/redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("failed to terminate redis container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	client, err := redis.NewClient(ctx, redis.Config{URI: uri})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestIntegration_Health(t *testing.T) {
	client := setupContainer(t)
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error: %v", err)
	}
}

func TestIntegration_Get_MissingKey(t *testing.T) {
	client := setupContainer(t)

	_, err := client.Get(context.Background(), "token:uses:missing")
	if !errors.Is(err, redis.Nil) {
		t.Errorf("Get() error = %v, want errors.Is(err, redis.Nil)", err)
	}
}

func TestIntegration_ConcurrentIncr_IsAtomic(t *testing.T) {
	client := setupContainer(t)
	ctx := context.Background()

	const (
		goroutines = 10
		perRoutine = 20
	)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perRoutine; j++ {
				if _, err := client.Incr(ctx, "token:uses:tok-1"); err != nil {
					t.Errorf("Incr() error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	val, err := client.Get(ctx, "token:uses:tok-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if want := "200"; val != want {
		t.Errorf("final count = %q, want %q", val, want)
	}
}

func TestIntegration_SetNX_PrimesOnce(t *testing.T) {
	client := setupContainer(t)
	ctx := context.Background()

	set, err := client.SetNX(ctx, "token:uses:tok-2", int64(5), 0)
	if err != nil {
		t.Fatalf("SetNX() error: %v", err)
	}
	if !set {
		t.Error("first SetNX() = false, want true")
	}

	set, err = client.SetNX(ctx, "token:uses:tok-2", int64(0), 0)
	if err != nil {
		t.Fatalf("second SetNX() error: %v", err)
	}
	if set {
		t.Error("second SetNX() = true, want false")
	}

	val, err := client.Get(ctx, "token:uses:tok-2")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "5" {
		t.Errorf("Get() = %q, want %q", val, "5")
	}
}
