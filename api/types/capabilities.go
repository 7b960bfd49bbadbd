package types

// AuthMode is the authentication level an identity can present to the bridged
// provider. The order matters: none < guest < user.
type AuthMode int

const (
	AuthModeNone AuthMode = iota
	AuthModeGuest
	AuthModeUser
)

func (m AuthMode) String() string {
	switch m {
	case AuthModeGuest:
		return "guest"
	case AuthModeUser:
		return "user"
	default:
		return "none"
	}
}

// Satisfies reports whether m grants at least the required mode.
func (m AuthMode) Satisfies(required AuthMode) bool {
	return m >= required
}

// Capability is a named operation gated by a minimum AuthMode.
type Capability string

// EnhancedCapabilities describes what the bridged provider can currently do
// for a given identity.
type EnhancedCapabilities struct {
	AuthType    string       `json:"auth_type"`
	Username    string       `json:"username"`
	ApiKeyValid bool         `json:"api_key_valid"`
	Operations  []Capability `json:"operations"`
}
