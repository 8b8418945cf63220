package main

import (
	"context"
	"fmt"
	"io"

	"github.com/vanderheijden86/codeviz/pkg/chart"
	"github.com/vanderheijden86/codeviz/pkg/export"
	"github.com/vanderheijden86/codeviz/pkg/fetch"
	"github.com/vanderheijden86/codeviz/pkg/selection"
)

type headlessOptions struct {
	Hard       bool
	ExportPath string
}

// runHeadless performs one refresh and prints the selected document, or
// writes its chart snapshot when an export path is set.
func runHeadless(ctx context.Context, ctrl *fetch.Controller, sel selection.Selection, opts headlessOptions, w io.Writer) error {
	snap, err := ctrl.Refresh(ctx, opts.Hard)
	if err != nil {
		return err
	}
	doc, err := ctrl.Cache().DeriveAt(snap, sel)
	if err != nil {
		return fmt.Errorf("%s: %w", sel, err)
	}

	if opts.ExportPath != "" {
		if err := export.Save(opts.ExportPath, chart.Parse(doc)); err != nil {
			return err
		}
		fmt.Fprintf(w, "Wrote %s chart (v%d) to %s\n", sel, snap.Version(), opts.ExportPath)
		return nil
	}

	out, err := doc.MarshalIndent()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
