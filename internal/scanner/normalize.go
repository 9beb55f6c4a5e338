package scanner

import (
	"strings"

	"golang.org/x/net/idna"

	"mailscan/pkg/serrors"
)

// NormalizeDomain returns the ASCII (A-label) form of a mail domain as used on
// the wire by DNS and HTTP:
//   - Lower-case the domain
//   - Remove surrounding whitespace and a trailing dot
//   - Convert Unicode labels to punycode
//
// Domains that violate the IDNA lookup rules return a BAD_REQUEST error.
func NormalizeDomain(raw string) (string, error) {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
	if d == "" {
		return "", serrors.With(serrors.ErrBadRequest, "empty domain %q", raw)
	}

	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", serrors.Wrap(serrors.ErrBadRequest, err, "invalid domain %q", raw)
	}

	return ascii, nil
}
