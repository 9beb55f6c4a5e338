package scanner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailscan/pkg/discovery"
	"mailscan/pkg/domain"
	"mailscan/pkg/logger"
	"mailscan/pkg/metrics"
	"mailscan/pkg/serrors"
)

// Lookups holds the collaborator of every discovery method. A nil collaborator
// makes its method report an UNAVAILABLE error.
type Lookups struct {
	Autoconfig   discovery.Lookup
	Autodiscover discovery.Lookup
	SRV          discovery.Lookup
	Buildin      discovery.Lookup
}

func (l Lookups) byMethod() map[domain.Method]discovery.Lookup {
	return map[domain.Method]discovery.Lookup{
		domain.MethodAutoconfig:   l.Autoconfig,
		domain.MethodAutodiscover: l.Autodiscover,
		domain.MethodSRV:          l.SRV,
		domain.MethodBuildin:      l.Buildin,
	}
}

// Options configure the dispatcher.
type Options struct {
	// Recorder receives per-method timings. It may be nil.
	Recorder *metrics.Recorder
	// Now returns the scan timestamp. Zero means time.Now.
	Now func() time.Time
}

// scanner is the concrete implementation of the Scanner interface. It runs the
// selected methods one after another; methods share no state.
type scanner struct {
	lookups  map[domain.Method]discovery.Lookup
	recorder *metrics.Recorder
	now      func() time.Time
}

// Scan runs the methods selected by req.Mask in the fixed order autoconfig,
// autodiscover, srv, buildin. A zero mask selects all of them. Every method is
// appended to methods_used before it runs and its output, or a
// domain.MethodError when it failed, is stored under its name. Collaborators
// receive the ASCII form of the domain; a domain without one is reported as a
// BAD_REQUEST error for every selected method and no collaborator is called.
// Only a cancelled context aborts the scan.
func (s scanner) Scan(ctx context.Context, req domain.ScanRequest) (*domain.ScanResult, error) {
	ctx = logger.WithFields(ctx, zap.String("email", req.MailAddress), zap.String("domain", req.Domain))

	res := &domain.ScanResult{
		ScanInfo: domain.ScanInfo{
			ID:          domain.NewScanID(),
			Email:       req.MailAddress,
			Domain:      req.Domain,
			Timestamp:   s.now().UTC(),
			MethodsUsed: []domain.Method{},
		},
		Results: map[domain.Method]any{},
	}

	target := req
	d, normErr := NormalizeDomain(req.Domain)
	if normErr != nil {
		logger.Warn(ctx, "invalid domain, skipping collaborators", zap.Error(normErr))
	}
	target.Domain = d

	for _, m := range req.Mask.Normalize().Methods() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan aborted before %s: %w", m, err)
		}

		res.ScanInfo.MethodsUsed = append(res.ScanInfo.MethodsUsed, m)
		if normErr != nil {
			res.Results[m] = domain.MethodError{Error: normErr.Error(), Kind: serrors.KindName(normErr)}

			continue
		}
		res.Results[m] = s.run(ctx, m, target)

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan aborted during %s: %w", m, err)
		}
	}
	s.recorder.ObserveScan(ctx)

	return res, nil
}

// run invokes one method and converts its error into a domain.MethodError.
func (s scanner) run(ctx context.Context, m domain.Method, req domain.ScanRequest) any {
	ctx = logger.WithFields(ctx, zap.String("method", string(m)))
	logger.Info(ctx, "scanning "+string(m))

	start := time.Now()
	out, err := s.invoke(ctx, m, req)
	elapsed := time.Since(start)

	if err != nil {
		kind := serrors.KindName(err)
		logger.Warn(ctx, string(m)+" scan failed", zap.String("kind", kind), zap.Error(err), zap.Duration("elapsed", elapsed))
		s.recorder.ObserveMethod(ctx, string(m), metrics.OutcomeError, kind, elapsed)

		return domain.MethodError{Error: err.Error(), Kind: kind}
	}

	logger.Info(ctx, string(m)+" scan completed", zap.Duration("elapsed", elapsed))
	s.recorder.ObserveMethod(ctx, string(m), metrics.OutcomeOK, "", elapsed)

	return out
}

func (s scanner) invoke(ctx context.Context, m domain.Method, req domain.ScanRequest) (out any, err error) {
	lookup := s.lookups[m]
	if lookup == nil {
		return nil, serrors.With(serrors.ErrUnavailable, "method %s is not configured", m)
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = serrors.With(serrors.ErrInternal, "method %s panicked: %v", m, r)
		}
	}()

	return lookup.Lookup(ctx, req.Domain, req.MailAddress)
}

// New creates a new Scanner dispatching to lookups.
func New(lookups Lookups, options Options) Scanner {
	now := options.Now
	if now == nil {
		now = time.Now
	}

	return &scanner{
		lookups:  lookups.byMethod(),
		recorder: options.Recorder,
		now:      now,
	}
}
