package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T, opts ...StoreOption) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStoreFromClient(client, opts...)
	if err != nil {
		t.Fatalf("NewRedisStoreFromClient() error = %v", err)
	}
	return mr, store
}

func TestRedisStoreSaveAndLoad(t *testing.T) {
	t.Parallel()

	mr, store := setupMiniredis(t)
	ctx := context.Background()

	st := NewSession("r1", "u1", time.Now())
	st.RefundInfo = RefundInfo{OrderID: "ORD-9", IsCustom: boolPtr(false)}
	st.AppendMessage(Message{Content: "hi", Sender: SenderUser}, 20)
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !mr.Exists("session:r1") {
		t.Fatal("expected key session:r1")
	}
	if ttl := mr.TTL("session:r1"); ttl != 24*time.Hour {
		t.Fatalf("TTL = %v, want 24h", ttl)
	}

	got, err := store.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.RefundInfo.OrderID != "ORD-9" || got.RefundInfo.IsCustom == nil || *got.RefundInfo.IsCustom {
		t.Fatalf("RefundInfo = %#v", got.RefundInfo)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Fatalf("Messages = %#v", got.Messages)
	}
}

func TestRedisStoreLoadNotFound(t *testing.T) {
	t.Parallel()

	_, store := setupMiniredis(t)
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestRedisStoreExpires(t *testing.T) {
	t.Parallel()

	mr, store := setupMiniredis(t, WithTTL(time.Minute))
	ctx := context.Background()

	if err := store.Save(ctx, NewSession("r2", "", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Load(ctx, "r2"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	t.Parallel()

	mr, store := setupMiniredis(t, WithKeyPrefix("chat:"))
	ctx := context.Background()

	if err := store.Save(ctx, NewSession("r3", "", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(ctx, "r3"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if mr.Exists("chat:r3") {
		t.Fatal("key should be gone after Delete")
	}
}
