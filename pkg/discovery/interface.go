// Package discovery defines the contract shared by the mail configuration
// discovery methods (autoconfig, autodiscover, srv, buildin).
package discovery

import "context"

// Lookup is implemented by every discovery method. Lookup returns the method's
// structured output for the domain of mailAddress. A method that finds nothing
// may return either an output describing the empty outcome or an error; the
// dispatcher stores errors as data next to the outputs of the other methods.
//
//go:generate mockgen -package mockdiscovery -source=interface.go -destination=mock/mockdiscovery.go *
type Lookup interface {
	Lookup(ctx context.Context, domain, mailAddress string) (any, error)
}

// LookupFunc adapts an ordinary function to the Lookup interface.
type LookupFunc func(ctx context.Context, domain, mailAddress string) (any, error)

// Lookup calls f(ctx, domain, mailAddress).
func (f LookupFunc) Lookup(ctx context.Context, domain, mailAddress string) (any, error) {
	return f(ctx, domain, mailAddress)
}
