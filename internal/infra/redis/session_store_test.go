package redis

import (
	"context"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	_ = store.GetOrCreate("room-1")
	if !mr.Exists("room:session:room-1") {
		t.Fatalf("expected redis key to be set")
	}

	if err := store.RecordPresence(context.Background(), "room-1", []string{"p2", "p1"}); err != nil {
		t.Fatalf("record presence: %v", err)
	}
	online, err := store.Online(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	sort.Strings(online)
	if len(online) != 2 || online[0] != "p1" || online[1] != "p2" {
		t.Fatalf("unexpected online set: %v", online)
	}

	store.DeleteIfEmpty("room-1")
	if mr.Exists("room:session:room-1") || mr.Exists("room:online:room-1") {
		t.Fatalf("expected redis keys to be removed")
	}
	if _, ok := store.Get("room-1"); ok {
		t.Fatalf("expected session dropped")
	}
}

func TestSessionStoreRecordPresenceReplacesSet(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewSessionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	ctx := context.Background()

	if err := store.RecordPresence(ctx, "room-1", []string{"p1", "p2"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordPresence(ctx, "room-1", []string{"p2"}); err != nil {
		t.Fatalf("record again: %v", err)
	}
	online, _ := store.Online(ctx, "room-1")
	if len(online) != 1 || online[0] != "p2" {
		t.Fatalf("expected only p2 online, got %v", online)
	}
	if ttl := mr.TTL("room:online:room-1"); ttl != time.Minute {
		t.Fatalf("expected online ttl refreshed, got %v", ttl)
	}

	if err := store.RecordPresence(ctx, "room-1", nil); err != nil {
		t.Fatalf("record empty: %v", err)
	}
	if mr.Exists("room:online:room-1") {
		t.Fatalf("expected empty online set removed")
	}
}
