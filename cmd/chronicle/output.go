package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// field is one row of a detail view.
type field struct {
	name, value string
}

// printer renders command results as an aligned detail view or as JSON.
type printer struct {
	asJSON bool
	w      io.Writer
}

func newPrinter(format string, w io.Writer) (*printer, error) {
	switch format {
	case "", "table":
		return &printer{w: w}, nil
	case "json":
		return &printer{asJSON: true, w: w}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want table or json)", format)
	}
}

// report writes doc as indented JSON, or the rows built by fields.
func (p *printer) report(doc any, fields func() []field) error {
	if p.asJSON {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	for _, f := range fields() {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", f.name, f.value); err != nil {
			return err
		}
	}
	return tw.Flush()
}
