package types

import "time"

// Identity is an account the worker scrapes and authenticates on behalf of.
// The credential fields are owned by the persistent store and mutated only
// through the auth manager.
type Identity struct {
	Username string `json:"username"`
	Password string `json:"-"`
	Proxy    string `json:"proxy,omitempty"`

	// GuestKey is the cached ephemeral guest credential for the bridged
	// provider. Once generated it is reused until explicitly invalidated.
	GuestKey          string     `json:"guest_key,omitempty"`
	GuestKeyCreatedAt *time.Time `json:"guest_key_created_at,omitempty"`

	// ApiKey is the user-supplied provider credential. ApiKeyValid is true
	// only if the key last passed a live validation probe.
	ApiKey          string     `json:"-"`
	ApiKeyValid     bool       `json:"api_key_valid"`
	ApiKeyCreatedAt *time.Time `json:"api_key_created_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthMode returns the mode the identity can present right now: user when a
// validated API key is stored, guest otherwise.
func (i *Identity) AuthMode() AuthMode {
	if i.ApiKey != "" && i.ApiKeyValid {
		return AuthModeUser
	}
	return AuthModeGuest
}
