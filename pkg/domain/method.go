package domain

import (
	"strings"

	"mailscan/pkg/serrors"
)

// Method names a discovery mechanism. The name doubles as the key of the
// method's output in a scan report.
type Method string

const (
	// MethodAutoconfig is the Mozilla/Thunderbird autoconfig mechanism.
	MethodAutoconfig Method = "autoconfig"
	// MethodAutodiscover is the Exchange/Outlook autodiscover mechanism.
	MethodAutodiscover Method = "autodiscover"
	// MethodSRV is the RFC 6186 DNS SRV mechanism.
	MethodSRV Method = "srv"
	// MethodBuildin is the builtin provider table.
	MethodBuildin Method = "buildin"
)

// AllMethods lists every method in dispatch order.
var AllMethods = []Method{MethodAutoconfig, MethodAutodiscover, MethodSRV, MethodBuildin} //nolint: gochecknoglobals

// MethodMask selects methods with one bit per method.
type MethodMask uint8

const (
	// MaskAutoconfig selects MethodAutoconfig.
	MaskAutoconfig MethodMask = 1 << iota
	// MaskAutodiscover selects MethodAutodiscover.
	MaskAutodiscover
	// MaskSRV selects MethodSRV.
	MaskSRV
	// MaskBuildin selects MethodBuildin.
	MaskBuildin

	// MaskAll selects every method.
	MaskAll = MaskAutoconfig | MaskAutodiscover | MaskSRV | MaskBuildin
)

// Bit returns the mask bit of m, or zero for an unknown method.
func (m Method) Bit() MethodMask {
	switch m {
	case MethodAutoconfig:
		return MaskAutoconfig
	case MethodAutodiscover:
		return MaskAutodiscover
	case MethodSRV:
		return MaskSRV
	case MethodBuildin:
		return MaskBuildin
	default:
		return 0
	}
}

// MaskOf builds a mask selecting the given methods.
func MaskOf(methods ...Method) MethodMask {
	var mask MethodMask
	for _, m := range methods {
		mask |= m.Bit()
	}

	return mask
}

// Normalize applies the default-all policy: an empty mask selects every method.
func (mask MethodMask) Normalize() MethodMask {
	if mask&MaskAll == 0 {
		return MaskAll
	}

	return mask & MaskAll
}

// Has reports whether m is selected.
func (mask MethodMask) Has(m Method) bool {
	bit := m.Bit()

	return bit != 0 && mask&bit != 0
}

// Methods returns the selected methods in dispatch order. The mask is not
// normalized, so a zero mask yields no methods.
func (mask MethodMask) Methods() []Method {
	methods := make([]Method, 0, len(AllMethods))
	for _, m := range AllMethods {
		if mask.Has(m) {
			methods = append(methods, m)
		}
	}

	return methods
}

// ParseMethods parses a comma separated list of method names into a mask.
// An empty string yields a zero mask.
func ParseMethods(s string) (MethodMask, error) {
	var mask MethodMask
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		bit := Method(name).Bit()
		if bit == 0 {
			return 0, serrors.With(serrors.ErrBadRequest, "unknown method %q", name)
		}
		mask |= bit
	}

	return mask, nil
}
