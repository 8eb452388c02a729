package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRecordAndFind(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewRedis(rdb, "")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Truncate(time.Millisecond)

	if err := l.Record(ctx, "tok-a", "u1", Device{UserAgent: "ua", IP: "10.0.0.1"}, exp); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	rec, err := l.Find(ctx, "tok-a")
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if rec.SubjectID != "u1" || rec.Device.IP != "10.0.0.1" || !rec.ExpiresAt.Equal(exp) || rec.Rotated() {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := l.Record(ctx, "tok-a", "u1", Device{}, exp); !errors.Is(err, ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}

	if _, err := l.Find(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisRotateChain(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewRedis(rdb, "")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := l.Record(ctx, "tok-a", "u1", Device{}, exp); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	rec, err := l.Rotate(ctx, "tok-a", "tok-b", exp, Device{UserAgent: "ua2"})
	if err != nil {
		t.Fatalf("Rotate error: %v", err)
	}
	if rec.SubjectID != "u1" || rec.ReplacedBy != HashToken("tok-b") {
		t.Fatalf("unexpected rotate result: %+v", rec)
	}

	rec, err = l.Rotate(ctx, "tok-a", "tok-c", exp, Device{})
	if !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected ErrReuseDetected, got %v", err)
	}
	if rec == nil || rec.SubjectID != "u1" {
		t.Fatalf("expected reused record subject, got %+v", rec)
	}
	if _, err := l.Find(ctx, "tok-c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no successor inserted on reuse, got %v", err)
	}

	if _, err := l.Rotate(ctx, "tok-b", "tok-d", exp, Device{}); err != nil {
		t.Fatalf("expected successor rotation to succeed: %v", err)
	}

	successor, err := l.Find(ctx, "tok-b")
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if successor.Device.UserAgent != "ua2" {
		t.Fatalf("expected successor to carry new device, got %+v", successor.Device)
	}
}

func TestRedisRotateExpiredAndMissing(t *testing.T) {
	_, rdb := newTestRedis(t)
	now := time.Now()
	l := NewRedis(rdb, "").WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := l.Record(ctx, "tok-a", "u1", Device{}, now.Add(time.Hour)); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := l.Rotate(ctx, "tok-a", "tok-b", now.Add(time.Hour), Device{}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := l.Rotate(ctx, "nope", "tok-b", now.Add(time.Hour), Device{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisConcurrentRotateSingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewRedis(rdb, "")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := l.Record(ctx, "tok-a", "u1", Device{}, exp); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		reused  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Rotate(ctx, "tok-a", fmt.Sprintf("tok-next-%d", i), exp, Device{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrReuseDetected):
				reused++
			}
		}(i)
	}
	wg.Wait()

	if success != 1 || reused != workers-1 {
		t.Fatalf("expected 1 success and %d reuse, got success=%d reused=%d", workers-1, success, reused)
	}
}

func TestRedisRevokeAll(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedis(rdb, "")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	for _, tok := range []string{"tok-a", "tok-b"} {
		if err := l.Record(ctx, tok, "u1", Device{}, exp); err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}
	if err := l.Record(ctx, "tok-other", "u2", Device{}, exp); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if _, err := l.Rotate(ctx, "tok-a", "tok-c", exp, Device{}); err != nil {
		t.Fatalf("Rotate error: %v", err)
	}

	n, err := l.RevokeAll(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAll error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked records, got %d", n)
	}
	for _, tok := range []string{"tok-a", "tok-b", "tok-c"} {
		if _, err := l.Find(ctx, tok); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %s revoked, got %v", tok, err)
		}
	}
	if _, err := l.Find(ctx, "tok-other"); err != nil {
		t.Fatalf("expected other subject untouched: %v", err)
	}
	if mr.Exists("rt:s:u1") {
		t.Fatal("expected subject index removed")
	}

	n, err = l.RevokeAll(ctx, "nobody")
	if err != nil || n != 0 {
		t.Fatalf("expected empty revoke, got n=%d err=%v", n, err)
	}
}

func TestRedisSubjectIndexExpiresWithRecords(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedis(rdb, "")
	ctx := context.Background()
	now := time.Now()

	if err := l.Record(ctx, "tok-a", "u1", Device{}, now.Add(time.Hour)); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if ttl := mr.TTL("rt:s:u1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected index ttl within the record lifetime, got %s", ttl)
	}

	if _, err := l.Rotate(ctx, "tok-a", "tok-b", now.Add(3*time.Hour), Device{}); err != nil {
		t.Fatalf("Rotate error: %v", err)
	}
	if ttl := mr.TTL("rt:s:u1"); ttl <= 2*time.Hour {
		t.Fatalf("expected rotation to extend index ttl, got %s", ttl)
	}

	if err := l.Record(ctx, "tok-short", "u1", Device{}, now.Add(30*time.Minute)); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if ttl := mr.TTL("rt:s:u1"); ttl <= 2*time.Hour {
		t.Fatalf("expected shorter record to keep index ttl, got %s", ttl)
	}

	prev := "tok-b"
	for i := 0; i < 50; i++ {
		next := fmt.Sprintf("tok-r%d", i)
		if _, err := l.Rotate(ctx, prev, next, now.Add(3*time.Hour), Device{}); err != nil {
			t.Fatalf("Rotate %d error: %v", i, err)
		}
		prev = next
	}

	mr.FastForward(4 * time.Hour)
	if mr.Exists("rt:s:u1") {
		t.Fatal("expected subject index to expire with its records")
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys left, got %v", keys)
	}
}

func TestRedisRotateAfterRevokeAllFails(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewRedis(rdb, "")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := l.Record(ctx, "tok-a", "u1", Device{}, exp); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if _, err := l.Rotate(ctx, "tok-a", "tok-b", exp, Device{}); err != nil {
		t.Fatalf("Rotate error: %v", err)
	}

	n, err := l.RevokeAll(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 revoked records, got n=%d err=%v", n, err)
	}
	if _, err := l.Rotate(ctx, "tok-b", "tok-c", exp, Device{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}
	if _, err := l.Find(ctx, "tok-c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no successor after revoke, got %v", err)
	}
}
