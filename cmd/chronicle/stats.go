package main

import (
	"strconv"

	"chronicle/internal/chronicle"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"
)

// statsDoc is the JSON form of "chronicle stats".
type statsDoc struct {
	chronicle.Stats
	LockHolder string `json:"lock_holder,omitempty"`
}

func newStatsCmd(app func() *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [name]",
		Short: "Show entry count, frontier and mapped sizes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := app()
			c, err := e.open(args, true)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			doc := statsDoc{Stats: c.Stats()}
			doc.LockHolder, _ = chronicle.LockHolder(c.Path())

			return e.out.report(doc, func() []field {
				s := doc.Stats
				rows := []field{
					{"Path", s.Path},
					{"Entries", strconv.FormatUint(s.Entries, 10)},
					{"Frontier", humanBytes(s.Frontier)},
					{"Data", humanBytes(s.DataBytes) + " in " + strconv.Itoa(s.DataSegments) + " segments"},
					{"Index", humanBytes(s.IndexBytes) + " in " + strconv.Itoa(s.IndexSegments) + " segments"},
				}
				if doc.LockHolder != "" {
					rows = append(rows, field{"Lock holder", doc.LockHolder})
				}
				return rows
			})
		},
	}
}

func humanBytes(n int64) string {
	if n <= 0 {
		return "0B"
	}
	return bytefmt.ByteSize(uint64(n))
}
