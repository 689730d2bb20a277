package auth

import "testing"

func TestComputeMD5Password(t *testing.T) {
	got := ComputeMD5Password("user", "pencil", [4]byte{0xde, 0xad, 0xbe, 0xef})
	if len(got) != 35 || got[:3] != "md5" {
		t.Fatalf("ComputeMD5Password returned %q, want 35-char string starting with md5", got)
	}

	// Deterministic for the same inputs.
	again := ComputeMD5Password("user", "pencil", [4]byte{0xde, 0xad, 0xbe, 0xef})
	if got != again {
		t.Fatalf("ComputeMD5Password not deterministic: %q != %q", got, again)
	}

	// Different salt produces a different hash.
	other := ComputeMD5Password("user", "pencil", [4]byte{0, 0, 0, 0})
	if got == other {
		t.Fatal("expected different salt to change the digest")
	}
}
