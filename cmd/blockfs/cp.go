package main

import (
	"github.com/spf13/cobra"

	"blockfs"
)

var cpCmd = &cobra.Command{
	Use:   "cp SOURCE DEST_DIRECTORY",
	Short: "copy a directory file and its BlockFiles into dest_directory, rewriting the copy's path table",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, destDir := args[0], args[1]

		d, err := blockfs.Open(src)
		if err != nil {
			return fail(cmd, err)
		}
		defer d.Close()

		copyDir, err := d.CopyTo(destDir)
		if err != nil {
			return fail(cmd, err)
		}
		copyDir.Close()

		ok(cmd, "copied %s to %s", src, destDir)
		return nil
	},
}
