package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liquidlab/liquidspec/internal/spec"
	"github.com/liquidlab/liquidspec/internal/suite"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
}

// listEntry is one case in the JSON listing.
type listEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	SkipReason  string `json:"skip_reason,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list <suite.cue>",
		Short:         "List the cases a suite selects",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listCases(cmd, opts, args[0])
		},
	}

	return cmd
}

func listCases(cmd *cobra.Command, opts *ListOptions, suitePath string) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	s, err := suite.Load(suitePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load suite", err)
	}

	cases, err := spec.LoadCases(s.Cases.Dir, s.Cases.Include, s.Cases.Exclude)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load cases", err)
	}

	entries := make([]listEntry, len(cases))
	for i, c := range cases {
		e := listEntry{Name: c.Name, Description: c.Description}
		if reason, ok := s.SkipReason(c.Name); ok {
			e.Skipped = true
			e.SkipReason = reason
		}
		entries[i] = e
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}

	for _, e := range entries {
		if e.Skipped {
			fmt.Fprintf(formatter.Writer, "%s (skip: %s)\n", e.Name, e.SkipReason)
		} else {
			fmt.Fprintln(formatter.Writer, e.Name)
		}
	}
	return nil
}
