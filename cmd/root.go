// Package cmd provides the root command and CLI setup for relocator.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mouse-blink/relocator/internal/adapter"
	"github.com/mouse-blink/relocator/internal/controller"
	"github.com/mouse-blink/relocator/internal/domain"
	m "github.com/mouse-blink/relocator/internal/model"
)

var sourceFSAdapter adapter.SourceFSAdapter
var jsFileAdapter adapter.JSFileAdapter
var manifestStore adapter.ManifestStore
var workflow domain.Workflow
var ui controller.UI

// outputDirFlag is a root-level flag shared by commands that write or read a build.
var outputDirFlag string

// excludePatterns is a root-level flag that filters files for applicable commands.
var excludePatterns []string

// cwdFlag overrides the directory relative literals resolve against.
var cwdFlag string

var verboseFlag bool

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	sourceFSAdapter = adapter.NewLocalSourceFSAdapter()
	jsFileAdapter = adapter.NewLocalJSFileAdapter()
	manifestStore = adapter.NewLocalManifestStore(sourceFSAdapter)
	workflow = domain.NewWorkflow(
		sourceFSAdapter,
		jsFileAdapter,
		manifestStore,
		ui,
		platformFromConfig(),
	)
}

const pathArgumentsHelp = `Paths may be files or directories; directories are scanned recursively
for .js, .mjs and .cjs sources:
  - .              scan the current directory
  - ./src ./lib    scan multiple directories
  - ./index.js     relocate a single file`

const rootLongDescription = `Relocator rewrites the __dirname, path.join and require expressions of
Node.js sources that point at files on disk, copies those files next to the
output and keeps native addons loadable once the code is bundled.

` + pathArgumentsHelp

const runLongDescription = `Relocate the given sources (default: current directory) into the output
directory together with every asset they reference.

` + pathArgumentsHelp

const listLongDescription = `List the sources and the assets each of them references, without writing
anything.

` + pathArgumentsHelp

const diffLongDescription = `Show a unified diff of the rewrites relocation would make, without
writing anything.

` + pathArgumentsHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relocator",
		Short: "Relocate assets referenced by Node.js sources",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

// newRootCmd builds a root command with its persistent flags, for tests.
func newRootCmd() *cobra.Command {
	cmd := baseRootCmd()
	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&outputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for relocated sources and assets",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().StringArrayVarP(&excludePatterns, excludeFlagName, "x", viper.GetStringSlice(excludeConfigKey), "exclude files matching regex (can be repeated)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(excludeFlagName), excludeConfigKey)

	cmd.PersistentFlags().StringVar(&cwdFlag, cwdFlagName, viper.GetString(cwdFlagName), "directory relative asset paths resolve against (default: each file's directory)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(cwdFlagName), cwdFlagName)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}

// listArgs gathers the source selection shared by every command.
func listArgs(args []string, threads int) domain.ListArgs {
	return domain.ListArgs{
		Paths:   parsePaths(args),
		Exclude: viper.GetStringSlice(excludeConfigKey),
		Cwd:     m.Path(viper.GetString(cwdFlagName)),
		Threads: threads,
	}
}
