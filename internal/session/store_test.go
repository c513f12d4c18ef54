package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, ttl), mr
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	st, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if st.ID == "" {
		t.Fatal("Create() returned empty session ID")
	}

	st.TemplatePath = "/tmp/template.png"
	st.CertificatePaths = []string{"/tmp/certificate_1.png"}
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := store.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.TemplatePath != "/tmp/template.png" {
		t.Errorf("TemplatePath = %q", got.TemplatePath)
	}
	if len(got.CertificatePaths) != 1 {
		t.Errorf("CertificatePaths = %v", got.CertificatePaths)
	}
}

func TestStore_MissingSession(t *testing.T) {
	store, _ := newTestStore(t, 0)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_Delete(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	st, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := store.Delete(ctx, st.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Get(ctx, st.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after delete = %v, want ErrNotFound", err)
	}

	// Deleting again is a no-op.
	if err := store.Delete(ctx, st.ID); err != nil {
		t.Errorf("second Delete() error: %v", err)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	st, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, st.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after TTL = %v, want ErrNotFound", err)
	}
}
