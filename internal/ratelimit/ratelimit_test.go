package ratelimit

import (
	"testing"
	"time"
)

func TestAllow(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(3, 10*time.Second)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("a") {
			t.Fatalf("request %d denied", i)
		}
	}
	if l.Allow("a") {
		t.Error("fourth request allowed")
	}
	// Other clients have their own budget
	if !l.Allow("b") {
		t.Error("client b denied")
	}

	// Tokens come back over the window
	now = now.Add(10 * time.Second)
	for i := 0; i < 3; i++ {
		if !l.Allow("a") {
			t.Fatalf("request %d after window denied", i)
		}
	}
}

func TestDisabled(t *testing.T) {
	l := New(0, time.Second)
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatal("disabled limiter denied a request")
		}
	}
	var nilLimiter *Limiter
	if !nilLimiter.Allow("a") {
		t.Fatal("nil limiter denied a request")
	}
}

func TestEvict(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(1, time.Second)
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(5 * time.Second)
	l.Allow("b")
	if _, ok := l.clients["a"]; ok {
		t.Error("idle client not evicted")
	}
}
