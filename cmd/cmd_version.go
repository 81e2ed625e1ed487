package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/constants"
	"github.com/spf13/cobra"
)

var versions = map[string]string{
	"":        constants.Version,
	"dataset": constants.DatasetVersion,
}

type versionCmdOptions struct {
	Component string
}

func NewVersionCommand() *cobra.Command {
	opts := &versionCmdOptions{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show dust-indexer version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return versionHandler(opts, cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Component, "component", "", `Show version of a specific component. E.g. "dataset"`)

	return cmd
}

func versionHandler(opts *versionCmdOptions, cmd *cobra.Command, _ []string) error {
	version, ok := versions[opts.Component]
	if !ok {
		return errors.Wrapf(errs.Unsupported, "invalid component name %q", opts.Component)
	}
	fmt.Fprintln(cmd.OutOrStdout(), version)
	return nil
}
