package memo

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestKey(t *testing.T) {
	a := Key(KindExplanation, 3, "Explain MRI in English")
	if b := Key(KindExplanation, 3, "Explain MRI in English"); a != b {
		t.Errorf("keys not stable: %q != %q", a, b)
	}
	if !regexp.MustCompile(`^explanation:3:[0-9a-f]{16}$`).MatchString(a) {
		t.Errorf("Key() = %q, unexpected format", a)
	}

	others := []string{
		Key(KindExplanation, 3, "Explain MRI in Hindi"),
		Key(KindExplanation, 4, "Explain MRI in English"),
		Key(KindIllustration, 3, "Explain MRI in English"),
	}
	for _, other := range others {
		if other == a {
			t.Errorf("Key() collision on %q", other)
		}
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemory(2)
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Errorf("Get(missing) = ok %v, err %v; want miss", ok, err)
	}

	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}} {
		if err := store.Put(ctx, kv[0], []byte(kv[1])); err != nil {
			t.Fatalf("Put(%s) error = %v", kv[0], err)
		}
	}

	value, ok, err := store.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Get(a) = ok %v, err %v", ok, err)
	}
	if string(value) != "1" {
		t.Errorf("Get(a) = %q, want 1", value)
	}

	// "b" is now least recently used
	if err := store.Put(ctx, "c", []byte("3")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, "b"); ok {
		t.Error("b should have been evicted")
	}
	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
}

func TestMemory_InvalidSize(t *testing.T) {
	if _, err := NewMemory(0); err == nil {
		t.Error("NewMemory(0) expected error")
	}
}

func TestMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemory(1024)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%10)
			_ = store.Put(ctx, key, []byte(key))
			_, _, _ = store.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	if store.Len() != 10 {
		t.Errorf("Len() = %d, want 10", store.Len())
	}
}

func TestRedis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prefix := "medibill-test:" + uuid.NewString() + ":"
	store, err := NewRedis(ctx, url, prefix, time.Minute)
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	defer store.Close()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Errorf("Get(missing) = ok %v, err %v; want miss", ok, err)
	}

	key := Key(KindExplanation, 1, "prompt")
	if err := store.Put(ctx, key, []byte(`{"explanation":"x"}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	value, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if string(value) != `{"explanation":"x"}` {
		t.Errorf("Get() = %s", value)
	}
}

func TestNewRedis_Errors(t *testing.T) {
	ctx := context.Background()

	for _, url := range []string{"", "not-a-url"} {
		if _, err := NewRedis(ctx, url, "p:", 0); err == nil {
			t.Errorf("NewRedis(%q) expected error", url)
		}
	}
}
