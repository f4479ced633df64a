package main

import (
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"
)

// runConfigCmd prints the effective configuration with secrets masked.
func runConfigCmd(args []string, env *Environment) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	var common commonFlags
	addCommonFlags(fs, &common)
	validate := fs.Bool("validate", false, "only validate, print nothing on success")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return parseError(err)
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *validate {
		return nil
	}

	out, err := cfg.Redacted().Marshal()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(env.Stdout, string(out))
	return err
}
