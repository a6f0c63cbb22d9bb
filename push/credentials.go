package push

import "github.com/go-git/go-git/v5/plumbing/transport"

// CredentialProvider resolves the auth method to use when pushing to
// a destination. Credential lookup itself is an external collaborator
// (spec §6) — this engine only depends on the contract.
type CredentialProvider interface {
	For(remoteName string) transport.AuthMethod
}

// NoAuth is a CredentialProvider for destinations that need no
// authentication (e.g. file:// or an unauthenticated git:// daemon).
type NoAuth struct{}

// For always returns nil, letting go-git fall back to no auth.
func (NoAuth) For(remoteName string) transport.AuthMethod { return nil }

// StaticCredentials resolves every remote to the same pre-configured
// AuthMethod, useful for tests and single-credential setups.
type StaticCredentials struct {
	Auth transport.AuthMethod
}

// For returns the configured AuthMethod regardless of remoteName.
func (s StaticCredentials) For(remoteName string) transport.AuthMethod { return s.Auth }

// MapCredentials resolves credentials per remote name from a lookup
// table. The `authGroup` config option is not consulted.
type MapCredentials map[string]transport.AuthMethod

// For returns the AuthMethod registered for remoteName, or nil.
func (m MapCredentials) For(remoteName string) transport.AuthMethod {
	return m[remoteName]
}
