package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mouse-blink/relocator/internal/domain"
	m "github.com/mouse-blink/relocator/internal/model"
)

var runParallelFlag int
var runSourceMapsFlag bool

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Relocate sources and emit their assets",
		Long:  runLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Run(cmd.Context(), domain.RunArgs{
				ListArgs:   listArgs(args, viper.GetInt(runParallelConfigKey)),
				Output:     m.Path(viper.GetString(outputFlagName)),
				SourceMaps: viper.GetBool(sourceMapsConfigKey),
			})
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runParallelFlag, runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "number of files relocated in parallel")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)

	cmd.Flags().BoolVar(&runSourceMapsFlag, sourceMapsFlagName, viper.GetBool(sourceMapsConfigKey), "write a .map file next to every rewritten source")
	bindFlagToConfig(cmd.Flags().Lookup(sourceMapsFlagName), sourceMapsConfigKey)
}
