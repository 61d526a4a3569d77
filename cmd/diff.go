package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mouse-blink/relocator/internal/domain"
)

var diffContextFlag int

// diffCmd represents the diff command.
var diffCmd = newDiffCmd()

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff [paths...]",
		Short: "Preview the rewrites as a unified diff",
		Long:  diffLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Diff(cmd.Context(), domain.DiffArgs{
				ListArgs: listArgs(args, viper.GetInt(runParallelConfigKey)),
				Context:  viper.GetInt(diffContextConfigKey),
			})
		},
	}

	cmd.Flags().IntVarP(&diffContextFlag, diffContextFlagName, "U", viper.GetInt(diffContextConfigKey), "lines of context around each change")
	bindFlagToConfig(cmd.Flags().Lookup(diffContextFlagName), diffContextConfigKey)

	return cmd
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
