// Package hash includes tests for the content digest adapter.
package hash

import (
	"errors"
	"testing"
)

// TestHasherDigestDeterministic ensures repeated hashing yields the same digest.
func TestHasherDigestDeterministic(t *testing.T) {
	t.Parallel()

	h, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got := h.Digest([]byte("hello"))
	want := "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := h.Digest([]byte("hello")); again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
	if other := h.Digest([]byte("hello!")); other == got {
		t.Fatalf("expected different content to produce a different digest")
	}
	if h.KeyLen() != len(got) || h.Algorithm() != AlgorithmSHA1 {
		t.Fatalf("unexpected hasher metadata: %s/%d", h.Algorithm(), h.KeyLen())
	}
}

// TestHasherSHA256 keeps the wider digest available for deployments that want it.
func TestHasherSHA256(t *testing.T) {
	t.Parallel()

	h, err := New("SHA256")
	if err != nil {
		t.Fatalf("New(sha256) error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := h.Digest([]byte("hello world")); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

// TestNewRejectsUnknownAlgorithm surfaces a startup error for bad configuration.
func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	if _, err := New("md4"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}
