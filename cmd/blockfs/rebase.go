package main

import (
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"blockfs"
)

var rebaseBlockSize int

var rebaseCmd = &cobra.Command{
	Use:   "rebase FILE",
	Short: "rewrite a directory file's path table to match its current sibling BlockFiles",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		d, err := blockfs.Open(path)
		if err != nil {
			return fail(cmd, err)
		}
		defer d.Close()

		// --block-size is accepted for original-tool compatibility but is
		// informational only: the path table rewrite doesn't depend on it,
		// since the on-disk block extent is read from the header itself.
		if rebaseBlockSize > 0 {
			log.Printf("blockfs: rebase: ignoring --block-size %d, volume block extent is %v", rebaseBlockSize, d.Volume())
		}

		if err := d.Rebase(filepath.Dir(path)); err != nil {
			return fail(cmd, err)
		}

		ok(cmd, "rebased %s to %s", path, filepath.Dir(path))
		return nil
	},
}

func init() {
	rebaseCmd.Flags().IntVar(&rebaseBlockSize, "block-size", 0, "legacy block-size hint (ignored; block extent is read from the header)")
}
