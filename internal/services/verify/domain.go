package verify

import (
	"strings"

	apperrors "github.com/louisbranch/guildverify/internal/platform/errors"
	"golang.org/x/net/idna"
)

// EmailDomain returns the part of email after its last "@".
func EmailDomain(email string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "", apperrors.WithMetadata(apperrors.CodeVerifyInvalidEmail, "email has no domain",
			map[string]string{"email": email})
	}
	return email[at+1:], nil
}

// NormalizeDomain maps a domain to its lower-case ASCII form so Unicode and
// punycode spellings of the same name compare equal.
func NormalizeDomain(domain string) (string, error) {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", err
	}
	return strings.ToLower(ascii), nil
}

// DomainAllowed reports whether email belongs to the allowed domain.
func DomainAllowed(email, allowed string) (bool, error) {
	domain, err := EmailDomain(email)
	if err != nil {
		return false, err
	}
	got, err := NormalizeDomain(domain)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeVerifyInvalidEmail, "normalize email domain", err)
	}
	want, err := NormalizeDomain(allowed)
	if err != nil || want == "" {
		return false, apperrors.Wrap(apperrors.CodeVerifyNoEmailDomain, "normalize configured domain", err)
	}
	return got == want, nil
}
