package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liquidlab/liquidspec/internal/spec"
	"github.com/liquidlab/liquidspec/internal/suite"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <suite.cue>",
		Short: "Check a suite and its case files without running anything",
		Long: `Validate a suite configuration and every case file it selects.

No engine is spawned. The suite file is checked against its schema,
case files are parsed and their invariants verified, and skip entries
are checked against the discovered case names.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateSuite(cmd, opts, args[0])
		},
	}

	return cmd
}

func validateSuite(cmd *cobra.Command, opts *ValidateOptions, suitePath string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	s, err := suite.Load(suitePath)
	if err != nil {
		formatter.Error("E_SUITE", err.Error(), nil)
		return NewExitError(ExitFailure, "suite validation failed")
	}

	if _, err := s.FrozenTimestamp(); err != nil {
		formatter.Error("E_SUITE", err.Error(), nil)
		return NewExitError(ExitFailure, "suite validation failed")
	}

	cases, err := spec.LoadCases(s.Cases.Dir, s.Cases.Include, s.Cases.Exclude)
	if err != nil {
		formatter.Error("E_CASE", err.Error(), nil)
		return NewExitError(ExitFailure, "case validation failed")
	}

	names := make(map[string]bool, len(cases))
	for _, c := range cases {
		names[c.Name] = true
	}

	var problems []string
	for _, sk := range s.Skip {
		if !names[sk.Case] {
			problems = append(problems, fmt.Sprintf("skip entry %q matches no case", sk.Case))
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			formatter.Error("E_SKIP", p, nil)
		}
		return NewExitError(ExitFailure, "suite validation failed")
	}

	return formatter.Success(fmt.Sprintf("suite %q ok: %d cases", s.Name, len(cases)))
}
