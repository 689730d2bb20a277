package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestLiteralPasswordResolve(t *testing.T) {
	p := LiteralPassword("s3cret")
	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "s3cret" {
		t.Fatalf("Resolve() = %q, want s3cret", got)
	}
}

func TestProviderPasswordResolvesLazily(t *testing.T) {
	calls := 0
	p := ProviderPassword(ProviderFunc(func(ctx context.Context) (string, error) {
		calls++
		return "from-provider", nil
	}))
	if calls != 0 {
		t.Fatal("provider must not be invoked before Resolve is called")
	}
	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "from-provider" || calls != 1 {
		t.Fatalf("Resolve() = %q, calls=%d", got, calls)
	}
}

func TestPasswordNeverLeaksInFormatting(t *testing.T) {
	p := LiteralPassword("super-secret-value")

	reps := []string{
		p.String(),
		p.GoString(),
		fmt.Sprintf("%v", p),
		fmt.Sprintf("%+v", p),
		fmt.Sprintf("%#v", p),
		fmt.Sprintf("%s", p),
	}
	for _, r := range reps {
		if strings.Contains(r, "super-secret-value") {
			t.Fatalf("password leaked through formatting: %q", r)
		}
	}

	jsonBytes, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(jsonBytes), "super-secret-value") {
		t.Fatalf("password leaked through JSON: %s", jsonBytes)
	}

	textBytes, err := p.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(textBytes), "super-secret-value") {
		t.Fatalf("password leaked through MarshalText: %s", textBytes)
	}
}
