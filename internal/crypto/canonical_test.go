package crypto

import (
	"errors"
	"testing"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	got, err := Canonicalize(map[string]any{
		"b": int64(2),
		"a": "one",
		"c": true,
	})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"a":"one","b":2,"c":true}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestCanonicalizeDeterministic(t *testing.T) {
	value := map[string]any{
		"outcome": "BLOCK",
		"seq":     int64(41),
		"nested":  map[string]any{"y": "b", "x": "a"},
		"list":    []string{"p", "q"},
		"null":    nil,
	}
	first, err := Canonicalize(value)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Canonicalize(value)
		if err != nil {
			t.Fatalf("canonicalize: %v", err)
		}
		if string(again) != string(first) {
			t.Fatalf("encoding not deterministic: %s vs %s", again, first)
		}
	}
}

func TestCanonicalizeRejectsUnsupported(t *testing.T) {
	if _, err := Canonicalize(map[string]any{"f": 1.5}); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestDigestPrefix(t *testing.T) {
	digest := DigestWithPrefix([]byte("entry"))
	if len(digest) != len("sha256:")+64 {
		t.Fatalf("unexpected digest length: %d", len(digest))
	}
	if digest[:7] != "sha256:" {
		t.Fatalf("missing prefix: %s", digest)
	}
	if DigestWithPrefix([]byte("entry")) != digest {
		t.Fatalf("digest not deterministic")
	}
}
