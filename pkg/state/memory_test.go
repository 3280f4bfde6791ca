package state

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ms := NewMemoryStore(0)
	defer ms.Close()
	ctx := context.Background()

	if err := ms.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := ms.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	// Returned slice is a copy.
	got[0] = 'x'
	again, _ := ms.Get(ctx, "k")
	if string(again) != "v" {
		t.Errorf("store mutated through returned slice: %q", again)
	}

	if err := ms.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ms.Get(ctx, "k"); err != ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ms := NewMemoryStore(0)
	defer ms.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	ms.now = func() time.Time { return now }

	ms.Set(ctx, "k", []byte("v"), time.Minute)
	now = now.Add(2 * time.Minute)

	if _, err := ms.Get(ctx, "k"); err != ErrKeyNotFound {
		t.Errorf("expected expired key, got %v", err)
	}

	ms.cleanup()
	if ms.Len() != 0 {
		t.Errorf("expected cleanup to drop expired key, len=%d", ms.Len())
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	ms := NewMemoryStore(time.Hour)
	ms.Close()

	if err := ms.Set(context.Background(), "k", nil, 0); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if err := ms.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestMsgPackSerializer_RoundTrip(t *testing.T) {
	s := NewMsgPackSerializer()

	small := map[string]any{"nombres": "Ana", "seguro_medico": true, "edad": 12.0}
	data, err := s.Marshal(small)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if data[0] != markerPlain {
		t.Errorf("small payload should not be compressed")
	}

	var out map[string]any
	if err := s.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["nombres"] != "Ana" || out["seguro_medico"] != true || out["edad"] != 12.0 {
		t.Errorf("unexpected round trip: %#v", out)
	}

	big := map[string]any{"alergias": strings.Repeat("polen ", 400)}
	data, err = s.Marshal(big)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if data[0] != markerCompressed {
		t.Errorf("large payload should be compressed")
	}
	out = nil
	if err := s.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["alergias"] != big["alergias"] {
		t.Errorf("compressed round trip mismatch")
	}

	if err := s.Unmarshal(nil, &out); err != ErrInvalidData {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
}
