package toolutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
)

func TestNormVideoIDs(t *testing.T) {
	got := NormVideoIDs([]string{
		"dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/abcdefghijk",
		"not a video",
		"",
	})
	want := []string{"dQw4w9WgXcQ", "abcdefghijk"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 20}, {-1, 20}, {5, 5}, {200, 100},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in, 20, 100); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCached(t *testing.T) {
	engine.InitCache("", time.Minute, 100, time.Hour)
	ctx := context.Background()
	key := engine.CacheKey("toolutil-test", t.Name())

	calls := 0
	fn := func(context.Context) ([]string, error) {
		calls++
		return []string{"123 W Main St"}, nil
	}
	for range 2 {
		out, err := Cached(ctx, key, fn)
		if err != nil {
			t.Fatalf("Cached: %v", err)
		}
		if len(out) != 1 || out[0] != "123 W Main St" {
			t.Fatalf("got %v", out)
		}
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}

	errKey := engine.CacheKey("toolutil-test", t.Name(), "err")
	fails := 0
	failing := func(context.Context) (int, error) {
		fails++
		return 0, errors.New("boom")
	}
	_, _ = Cached(ctx, errKey, failing)
	_, _ = Cached(ctx, errKey, failing)
	if fails != 2 {
		t.Errorf("errors must not be cached: fn called %d times", fails)
	}
}

func TestCachedIfSkipsRejected(t *testing.T) {
	engine.InitCache("", time.Minute, 100, time.Hour)
	ctx := context.Background()
	key := engine.CacheKey("toolutil-test", t.Name())

	calls := 0
	fn := func(context.Context) ([]string, error) {
		calls++
		if calls == 1 {
			return nil, nil
		}
		return []string{"abc123"}, nil
	}
	complete := func(v []string) bool { return len(v) == 1 }

	first, err := CachedIf(ctx, key, fn, complete)
	if err != nil || len(first) != 0 {
		t.Fatalf("first call: %v, %v", first, err)
	}
	second, err := CachedIf(ctx, key, fn, complete)
	if err != nil || len(second) != 1 {
		t.Fatalf("second call: %v, %v", second, err)
	}
	third, _ := CachedIf(ctx, key, fn, complete)
	if len(third) != 1 || calls != 2 {
		t.Errorf("complete result not cached: calls=%d third=%v", calls, third)
	}
}
