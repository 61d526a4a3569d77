package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mouse-blink/relocator/internal/domain"
	m "github.com/mouse-blink/relocator/internal/model"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "View the asset manifest of a previous run",
		Long:  "View the assets recorded in " + domain.ManifestName + " inside the output directory.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return workflow.View(cmd.Context(), domain.ViewArgs{Output: m.Path(viper.GetString(outputFlagName))})
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
