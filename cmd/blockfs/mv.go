package main

import (
	"github.com/spf13/cobra"

	"blockfs"
)

var mvCmd = &cobra.Command{
	Use:   "mv SOURCE DEST_DIRECTORY",
	Short: "move a directory file and its BlockFiles into dest_directory, rewriting the path table",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, destDir := args[0], args[1]

		d, err := blockfs.Open(src)
		if err != nil {
			return fail(cmd, err)
		}
		if err := d.MoveTo(destDir); err != nil {
			return fail(cmd, err)
		}

		ok(cmd, "moved %s to %s", src, destDir)
		return nil
	},
}
