package main

import (
	"errors"

	"github.com/spf13/cobra"

	"blockfs"
)

// badArguments wraps a usage error so exitCodeFor reports 2 instead of the
// generic I/O exit code.
type badArguments struct{ err error }

func (b badArguments) Error() string { return b.err.Error() }
func (b badArguments) Unwrap() error { return b.err }

func isBadArguments(err error) bool {
	var b badArguments
	return errors.As(err, &b)
}

// exactArgs wraps cobra.ExactArgs so a wrong argument count is classified
// as exitBadArguments rather than falling through to the generic I/O exit
// code.
func exactArgs(n int) cobra.PositionalArgs {
	inner := cobra.ExactArgs(n)
	return func(cmd *cobra.Command, args []string) error {
		if err := inner(cmd, args); err != nil {
			return badArguments{err}
		}
		return nil
	}
}

func isFormatMismatch(err error) bool {
	return errors.Is(err, blockfs.ErrFormatError) || errors.Is(err, blockfs.ErrUnsupportedCodec)
}
