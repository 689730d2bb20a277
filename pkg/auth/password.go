package auth

import (
	"context"
	"fmt"
)

// Provider resolves a password lazily, e.g. from a secrets manager. It is
// invoked at most once per connection attempt, only if the server actually
// requests a password.
type Provider interface {
	ResolvePassword(ctx context.Context) (string, error)
}

// providerFunc adapts a plain function to Provider.
type providerFunc func(ctx context.Context) (string, error)

func (f providerFunc) ResolvePassword(ctx context.Context) (string, error) { return f(ctx) }

// ProviderFunc wraps fn as a Provider.
func ProviderFunc(fn func(ctx context.Context) (string, error)) Provider {
	return providerFunc(fn)
}

// Password is either a literal string known up front, or a Provider that
// resolves one lazily. Its String/GoString/Format/MarshalJSON/MarshalText
// methods never reveal the underlying value, mirroring the teacher's
// UserSecretData redaction pattern, so a ConnectionParameters struct can be
// logged or dumped without leaking credentials.
type Password struct {
	literal  string
	hasLit   bool
	provider Provider
}

// LiteralPassword wraps a password already known at configuration time.
func LiteralPassword(password string) Password {
	return Password{literal: password, hasLit: true}
}

// ProviderPassword wraps a Provider that resolves the password lazily.
func ProviderPassword(p Provider) Password {
	return Password{provider: p}
}

// IsZero reports whether no password was configured at all (neither a
// literal nor a provider) — distinct from a literal empty string.
func (p Password) IsZero() bool {
	return !p.hasLit && p.provider == nil
}

// Resolve returns the password value, invoking the Provider if one was
// configured. Resolution happens lazily, on the first authentication
// request that actually needs it, per spec: the session must not resolve
// a password it never ends up using (e.g. trust auth).
func (p Password) Resolve(ctx context.Context) (string, error) {
	if p.hasLit {
		return p.literal, nil
	}
	if p.provider == nil {
		return "", nil
	}
	return p.provider.ResolvePassword(ctx)
}

func (p Password) String() string   { return "Password{REDACTED}" }
func (p Password) GoString() string { return "auth.Password{REDACTED}" }

func (p Password) Format(f fmt.State, verb rune) {
	_, _ = fmt.Fprint(f, "Password{REDACTED}")
}

func (p Password) MarshalJSON() ([]byte, error) {
	return []byte(`"REDACTED"`), nil
}

func (p Password) MarshalText() ([]byte, error) {
	return []byte("REDACTED"), nil
}
