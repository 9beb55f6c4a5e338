package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mailscan/internal/output"
	"mailscan/pkg/domain"
	"mailscan/pkg/logger"
)

type scanOptions struct {
	mailAddress  string
	autoconfig   bool
	autodiscover bool
	srv          bool
	buildin      bool
	jsonFile     string
}

// mask maps the method flags to a method mask. No flag yields the zero mask
// which selects every method.
func (o scanOptions) mask() domain.MethodMask {
	var mask domain.MethodMask
	if o.autoconfig {
		mask |= domain.MaskAutoconfig
	}
	if o.autodiscover {
		mask |= domain.MaskAutodiscover
	}
	if o.srv {
		mask |= domain.MaskSRV
	}
	if o.buildin {
		mask |= domain.MaskBuildin
	}

	return mask
}

// scan validates the address before any collaborator is built, runs the
// dispatcher and writes the report. A failed write is logged by the writer
// and does not fail the command.
func (a *app) scan(ctx context.Context, opts scanOptions) error {
	req, err := domain.NewScanRequest(opts.mailAddress, opts.mask())
	if err != nil {
		return err
	}
	ctx = logger.WithFields(ctx, zap.String("email", req.MailAddress))

	sc, err := a.newScanner(a.cfg, nil)
	if err != nil {
		return fmt.Errorf("could not create scanner: %w", err)
	}

	res, err := sc.Scan(ctx, req)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if !output.New(a.stdout).Write(ctx, res, opts.jsonFile) {
		logger.Warn(ctx, "scan finished but the report could not be written")
	}

	return nil
}
