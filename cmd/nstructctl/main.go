// Command nstructctl is a small demonstration CLI for the nstruct
// library: it parses a BTRFS leaf block from a file using the worked
// btrfsfmt package and prints its dumped value as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/op/go-logging"
	"github.com/spf13/cobra"

	"github.com/blichmann/nstruct/internal/config"
	nst "github.com/blichmann/nstruct/nstruct"
	"github.com/blichmann/nstruct/nstruct/btrfsfmt"
	"github.com/blichmann/nstruct/nstruct/nlog"
)

// options is nstructctl's full set of configurable behavior, loaded by
// internal/config with CLI > env > TOML-file precedence.
type options struct {
	Config        string
	LogLevel      string `toml:"log_level" env:"LOG_LEVEL"`
	HumanReadable bool   `toml:"human_readable" env:"HUMAN_READABLE"`
	IncludeType   bool   `toml:"include_type" env:"INCLUDE_TYPE"`
}

func main() {
	opts := &options{LogLevel: "INFO"}

	root := &cobra.Command{
		Use:   "nstructctl",
		Short: "Inspect binary structures declared with nstruct",
	}
	root.PersistentFlags().StringVar(&opts.Config, "config", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "DEBUG, INFO, WARNING, ERROR, or CRITICAL")
	root.PersistentFlags().BoolVar(&opts.HumanReadable, "human-readable", false, "symbolize enums and bitmasks instead of printing raw integers")
	root.PersistentFlags().BoolVar(&opts.IncludeType, "include-type", false, "include a _type key on every dumped struct")

	dumpLeaf := &cobra.Command{
		Use:   "dump-leaf <file>",
		Short: "Parse a BTRFS b-tree leaf block and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(opts, cmd, opts.Config); err != nil {
				return err
			}
			nlog.SetupLogging("nstructctl", parseLevel(opts.LogLevel))
			return runDumpLeaf(args[0], opts)
		},
	}
	root.AddCommand(dumpLeaf)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDumpLeaf(path string, opts *options) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("nstructctl: read %s: %w", path, err)
	}
	v, err := btrfsfmt.ParseLeaf(buf)
	if err != nil {
		return fmt.Errorf("nstructctl: parse leaf: %w", err)
	}
	dumped, err := nst.Dump(v, nst.DumpOptions{
		HumanReadable: opts.HumanReadable,
		IncludeType:   opts.IncludeType,
	})
	if err != nil {
		return fmt.Errorf("nstructctl: dump: %w", err)
	}
	out, err := json.MarshalIndent(dumped, "", "  ")
	if err != nil {
		return fmt.Errorf("nstructctl: marshal: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func parseLevel(s string) logging.Level {
	switch s {
	case "DEBUG":
		return logging.DEBUG
	case "WARNING":
		return logging.WARNING
	case "ERROR":
		return logging.ERROR
	case "CRITICAL":
		return logging.CRITICAL
	case "NOTICE":
		return logging.NOTICE
	default:
		return logging.INFO
	}
}
