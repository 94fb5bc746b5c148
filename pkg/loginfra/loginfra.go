// Package loginfra wires klog flags into the command line.
package loginfra

import (
	"flag"
	"fmt"
	"io"
	"os"

	"k8s.io/klog/v2"
)

// EnvVerbosity sets the -v level when present.
const EnvVerbosity = "PACKREL_VERBOSITY"

func NewFlagSet(name string) *flag.FlagSet {
	// See https://flowerinthenight.com/blog/2019/02/05/golang-cobra-klog
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	// Suppress usage flag.ErrHelp
	fs.SetOutput(io.Discard)

	return fs
}

// AddKlogFlags registers klog flags on fs and applies the verbosity from getenv, if any.
func AddKlogFlags(fs *flag.FlagSet, getenv func(string) string) (*flag.FlagSet, error) {
	klog.InitFlags(fs)

	if err := fs.Set("skip_headers", "true"); err != nil {
		return nil, err
	}

	if v := getenv(EnvVerbosity); v != "" {
		// -v LEVEL must preceed the remaining args to be parsed by fs
		fmt.Fprintf(os.Stderr, "Setting log verbosity to %s\n", v)
		if err := fs.Set("v", v); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvVerbosity, err)
		}
	}

	return fs, nil
}
