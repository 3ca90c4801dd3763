package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.IdempotencyKey("payments", "ref-1")
	first, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !first {
		t.Fatalf("expected first setnx to succeed, got %v %v", first, err)
	}
	second, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || second {
		t.Fatalf("expected second setnx to be rejected, got %v %v", second, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestPublishUsesRealtimeChannel(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	channel := client.RealtimeUserChannel("user-1")
	if _, err := client.Publish(ctx, channel, `{"type":"file_status"}`); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if got := mock.published[channel]; len(got) != 1 || got[0] != `{"type":"file_status"}` {
		t.Fatalf("unexpected published payloads %v", got)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "fulfillment:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RealtimeUserChannel("42"); got != "fulfillment:realtime:user:42" {
		t.Fatalf("unexpected realtime channel %s", got)
	}
	if got := client.LockKey("parcel-resync"); got != "fulfillment:lock:parcel-resync" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "fulfillment:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestKeysUseConfiguredNamespace(t *testing.T) {
	client := &Client{namespace: "staging"}
	if got := client.LockKey("cron-worker:dev"); got != "staging:lock:cron-worker:dev" {
		t.Fatalf("unexpected lock key %s", got)
	}
}

func TestCompareAndDeleteOnlyRemovesOwnedKey(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	mock.data["k"] = "owner-a"

	deleted, err := client.CompareAndDelete(ctx, "k", "owner-b")
	if err != nil || deleted {
		t.Fatalf("expected no delete for foreign owner, got %v %v", deleted, err)
	}
	deleted, err = client.CompareAndDelete(ctx, "k", "owner-a")
	if err != nil || !deleted {
		t.Fatalf("expected delete for owner, got %v %v", deleted, err)
	}
	if _, ok := mock.data["k"]; ok {
		t.Fatalf("key should be gone")
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if _, err := client.Publish(context.Background(), "c", "p"); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
}

type mockCmdable struct {
	redis.Scripter
	data      map[string]string
	published map[string][]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:      make(map[string]string),
		published: make(map[string][]string),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.published[channel] = append(m.published[channel], fmt.Sprint(message))
	return redis.NewIntResult(1, nil)
}

// EvalSha emulates the compare-and-delete script, the only one the client runs.
func (m *mockCmdable) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	if len(keys) == 1 && len(args) == 1 && m.data[keys[0]] == fmt.Sprint(args[0]) {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}
