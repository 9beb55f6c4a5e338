package domain

import (
	"strings"

	"mailscan/pkg/serrors"
)

// Address is a mail address split into its local and domain parts.
type Address struct {
	// Raw is the address exactly as given by the caller.
	Raw string
	// Local is the part before the '@'.
	Local string
	// Domain is the part after the '@' exactly as given.
	Domain string
}

// String returns the address as given by the caller.
func (a Address) String() string { return a.Raw }

// ParseAddress validates the shape of a mail address. The address must contain
// exactly one '@' separating a non-empty local part from a non-empty domain.
// No further syntax checks are made.
func ParseAddress(raw string) (Address, error) {
	parts := strings.Split(raw, "@")
	if len(parts) != 2 {
		return Address{}, serrors.With(serrors.ErrBadRequest, "invalid email address: %q", raw)
	}

	local, host := parts[0], parts[1]
	if local == "" || host == "" {
		return Address{}, serrors.With(serrors.ErrBadRequest, "invalid email address: %q", raw)
	}

	return Address{Raw: raw, Local: local, Domain: host}, nil
}
