package ratelimit

import (
	"testing"
	"time"
)

func TestAcquire_TokenBucket(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 2; i++ {
		d := l.Acquire("k", now)
		if !d.Allowed {
			t.Fatalf("request %d denied", i)
		}
		d.Permit.Release()
	}

	denied := l.Acquire("k", now)
	if denied.Allowed || denied.RetryAfter != 1 {
		t.Fatalf("third allowed=%v retry_after=%d", denied.Allowed, denied.RetryAfter)
	}

	if d := l.Acquire("other", now); !d.Allowed {
		t.Fatalf("other caller should have its own bucket")
	}

	if d := l.Acquire("k", now.Add(time.Second)); !d.Allowed {
		t.Fatalf("bucket should refill after a second")
	}
}

func TestAcquire_EnforcesConcurrency(t *testing.T) {
	l := New(Config{MaxConcurrent: 1})
	now := time.Now()

	first := l.Acquire("p1", now)
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}

	second := l.Acquire("p1", now)
	if second.Allowed {
		t.Fatalf("second should be denied")
	}

	first.Permit.Release()
	first.Permit.Release()
	third := l.Acquire("p1", now)
	if !third.Allowed {
		t.Fatalf("third should be allowed after release")
	}
}

func TestAcquire_BoundedEntries(t *testing.T) {
	l := New(Config{MaxConcurrent: 1, MaxEntries: 2})
	now := time.Now()
	for _, k := range []string{"a", "b", "c", "d"} {
		l.Acquire(k, now).Permit.Release()
	}
	if n := len(l.callers); n > 2 {
		t.Fatalf("callers=%d, want <= 2", n)
	}
}

func TestKeyFromToken(t *testing.T) {
	a, b := KeyFromToken("secret-a"), KeyFromToken("secret-b")
	if a == b || len(a) != 34 {
		t.Fatalf("a=%q b=%q", a, b)
	}
	if KeyFromToken("secret-a") != a {
		t.Fatalf("key not stable")
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() || (Config{RPS: 1}).Enabled() {
		t.Fatalf("expected disabled")
	}
	if !(Config{RPS: 1, Burst: 1}).Enabled() || !(Config{MaxConcurrent: 2}).Enabled() {
		t.Fatalf("expected enabled")
	}
}
