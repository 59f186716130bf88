package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"fxrec/internal/audit"
	"fxrec/internal/service"
)

// Audit streams progress for one file and prints the reconciled rows.
func (a *App) Audit(ctx context.Context, out io.Writer, opts AuditOptions) error {
	if opts.Path == "" {
		return errors.New("an input file is required")
	}

	ctx, cancel := interruptible(ctx)
	defer cancel()

	svc, closeSvc, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer closeSvc()

	events, outcome := svc.StartAudit(ctx, service.AuditRequest{
		Source:       audit.FromPath(opts.Path),
		DateFormat:   opts.DateFormat,
		ThresholdPct: opts.Threshold,
		Credential:   opts.Credential,
		TestingMode:  opts.TestingMode,
		InvertRates:  opts.Invert,
	})
	for ev := range events {
		if opts.Quiet && !ev.Phase.Terminal() {
			continue
		}
		renderEvent(out, ev)
	}

	res := <-outcome
	if res.Err != nil {
		return res.Err
	}

	if err := renderAudit(out, res.Result); err != nil {
		return err
	}
	if opts.CSVPath != "" {
		if err := writeAuditCSV(opts.CSVPath, res.Result); err != nil {
			return fmt.Errorf("write audit csv: %w", err)
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("rows", len(res.Result.Rows)).Msg("audit exported")
	}
	return nil
}

// Template writes an empty audit file with the canonical headers.
func (a *App) Template(path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(audit.TemplateHeaders); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
