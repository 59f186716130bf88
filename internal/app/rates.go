package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"fxrec/internal/rates"
	"fxrec/internal/service"
)

// Rates resolves a basket, prints the table and optionally exports it.
func (a *App) Rates(ctx context.Context, out io.Writer, opts RatesOptions) error {
	bases, err := service.ParseBases(opts.Bases)
	if err != nil {
		return fmt.Errorf("parse bases: %w", err)
	}
	var exclude []rates.Code
	if len(bases) == 1 {
		exclude = bases
	}
	targets, err := service.ParseTargets(opts.Targets, exclude...)
	if err != nil {
		return fmt.Errorf("parse targets: %w", err)
	}

	ctx, cancel := interruptible(ctx)
	defer cancel()

	svc, closeSvc, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer closeSvc()

	res, err := svc.ResolveRates(ctx, service.RatesRequest{
		Credential: opts.Credential,
		Bases:      bases,
		Targets:    targets,
		Start:      opts.From,
		End:        opts.To,
		Invert:     opts.Invert,
	})
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		a.Logger.Warn().Msg(w)
	}
	if len(res.Rows) == 0 {
		fmt.Fprintln(out, "no rates resolved")
		return nil
	}
	if err := renderRates(out, res.Rows); err != nil {
		return err
	}

	if opts.CSVPath == "" && opts.PNGPath == "" {
		return nil
	}
	return a.exportRates(res.Rows, opts)
}

// Targets prints the currencies quoted against base.
func (a *App) Targets(ctx context.Context, out io.Writer, base, credential string) error {
	svc, closeSvc, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer closeSvc()

	codes, err := svc.AvailableTargets(ctx, credential, rates.Normalize(base))
	if err != nil {
		return err
	}
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = string(c)
	}
	fmt.Fprintf(out, "%d targets for %s\n%s\n", len(codes), rates.Normalize(base), strings.Join(names, ", "))
	return nil
}
