package schema

import (
	"regexp"
	"time"
)

// FormatJSON is the only config format served.
const FormatJSON = "json"

// MaxVersionLength matches the width of the version columns.
const MaxVersionLength = 64

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidateVersion checks that v has the x.y.z shape. Ordering between
// versions is not enforced anywhere.
func ValidateVersion(field, v string) error {
	if len(v) > MaxVersionLength {
		return NewErrorf(ErrCodeBadRequest, "%s must be at most %d characters", field, MaxVersionLength)
	}
	if !versionPattern.MatchString(v) {
		return NewErrorf(ErrCodeBadRequest, "%s %q must match x.y.z", field, v)
	}
	return nil
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName checks service codes and environment names, which appear as
// URL path segments.
func ValidateName(field, s string) error {
	if s == "" {
		return NewErrorf(ErrCodeBadRequest, "%s is required", field)
	}
	if !namePattern.MatchString(s) {
		return NewErrorf(ErrCodeBadRequest, "%s %q may only contain letters, digits, '.', '_' and '-'", field, s)
	}
	return nil
}

// ValidateFormat rejects any format other than json. Empty means json.
func ValidateFormat(format string) error {
	if format != "" && format != FormatJSON {
		return NewError(ErrCodeBadRequest, "format must be json")
	}
	return nil
}

// Credential statuses.
const (
	CredentialActive   = "active"
	CredentialDisabled = "disabled"
)

// IssuedCredential is returned exactly once, when a credential is created.
// The secret key cannot be retrieved afterwards.
type IssuedCredential struct {
	AccessKey string `json:"ak"`
	SecretKey string `json:"sk"`
}

// IssuedToken is the result of minting a pull token.
type IssuedToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
