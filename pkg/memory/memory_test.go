package memory_test

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/igolaizola/igotutor/internal/memory/local"
	"github.com/igolaizola/igotutor/pkg/memory"
)

func TestSessionID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", memory.DefaultSessionID},
		{"   ", memory.DefaultSessionID},
		{"s1", "s1"},
		{" s1 ", "s1"},
	}
	for _, tt := range tests {
		if got := memory.SessionID(tt.in); got != tt.want {
			t.Errorf("SessionID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := local.New()
	var want []memory.Message
	for i := 0; i < 5; i++ {
		turn := memory.Turn(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		want = append(want, turn...)
		if err := memory.Record(ctx, s, "s1", memory.DefaultCap, turn...); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.ReadAll(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadAll() = %v, want %v", got, want)
	}
}

func TestRecordTrimsToHalfCap(t *testing.T) {
	ctx := context.Background()
	s := local.New()
	limit := 8
	var all []memory.Message
	for i := 0; i < 10; i++ {
		turn := memory.Turn(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		all = append(all, turn...)
		if err := memory.Record(ctx, s, "s1", limit, turn...); err != nil {
			t.Fatal(err)
		}
		got, err := s.ReadAll(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) > limit {
			t.Fatalf("turn %d: length %d exceeds cap %d", i, len(got), limit)
		}
		// The stored messages must be the most recent ones
		tail := all[len(all)-len(got):]
		if !reflect.DeepEqual(got, tail) {
			t.Fatalf("turn %d: ReadAll() = %v, want %v", i, got, tail)
		}
	}
}

func TestRecordWithoutCap(t *testing.T) {
	ctx := context.Background()
	s := local.New()
	for i := 0; i < 30; i++ {
		if err := memory.Record(ctx, s, "s1", 0, memory.Turn("q", "a")...); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.ReadAll(ctx, "s1")
	if len(got) != 60 {
		t.Errorf("got %d messages, want 60", len(got))
	}
}
