// Command blockfs is the external relocation-tool surface: thin verbs
// over the library's Rebase/MoveTo/CopyTo operations, composed the way
// cockroachdb-pebble's cmd/pebble/main.go composes its cobra subcommands.
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Exit codes for the blockfs CLI.
const (
	exitOK             = 0
	exitIOError        = 1
	exitBadArguments   = 2
	exitFormatMismatch = 3
)

var rootCmd = &cobra.Command{
	Use:   "blockfs [command]",
	Short: "relocate and inspect BlockFS volumes",
	Long:  ``,
}

func main() {
	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(mvCmd, cpCmd, rebaseCmd, inspectCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command error to one of the exit codes above,
// preferring the most specific classification a sentinel error carries.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case isBadArguments(err):
		return exitBadArguments
	case isFormatMismatch(err):
		return exitFormatMismatch
	default:
		return exitIOError
	}
}

func fail(cmd *cobra.Command, err error) error {
	color.Red("blockfs: %s", err.Error())
	return err
}

func ok(cmd *cobra.Command, format string, args ...interface{}) {
	color.Green(format, args...)
}
