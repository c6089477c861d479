package main

import (
	"log"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"blockfs"
)

var inspectVerbose bool

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "report index occupancy and per-BlockFile byte totals for a directory file",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		d, err := blockfs.Open(path)
		if err != nil {
			return fail(cmd, err)
		}
		defer d.Close()

		stats := d.Stats()
		log.Printf("%s: %d present, %d absent blocks", path, stats.Present, stats.Absent)
		for _, f := range stats.Files {
			log.Printf("  file_id=%d %s: %d bytes", f.FileID, f.Path, f.Bytes)
		}
		if inspectVerbose {
			spew.Dump(stats)
		}

		ok(cmd, "inspected %s", path)
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVarP(&inspectVerbose, "verbose", "v", false, "dump full Stats via go-spew")
}
