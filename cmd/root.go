package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"thoreinstein.com/shipwright/pkg/bootstrap"
	"thoreinstein.com/shipwright/pkg/config"
)

var cfgFile string
var verbose bool
var appConfig *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shipwright",
	Short: "Shipwright - plan, implement and review code changes with an LLM agent",
	Long: `Shipwright orchestrates an LLM coding agent around Azure DevOps work items
and Azure DevOps or GitHub pull requests.

For a ticket it fetches the work item, drafts an implementation plan you can
refine and discuss, lets the agent implement it in a cloned or local
workspace, then commits, pushes and opens the pull request. For a review it
fetches the pull request, plans the review, runs a read-only agent over the
diff and posts the findings you pick as pull request comments.

Run 'shipwright serve' for the web API, or use the subcommands directly.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cfgFile, verbose = bootstrap.PreParseGlobalFlags(os.Args)

	if err := rootCmd.Execute(); err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		_ = initConfig()
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "C", "", "config file (default is $HOME/.config/shipwright/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	var err error
	appConfig, err = bootstrap.InitConfig(cfgFile, verbose)
	return err
}

// loadConfig returns the configuration loaded for this invocation, loading
// it first when cobra's initializer could not.
func loadConfig() (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	if err := initConfig(); err != nil {
		return nil, err
	}
	return appConfig, nil
}

// resetConfig clears the cached configuration.
// This is primarily used in tests to ensure each test starts with a fresh config.
func resetConfig() {
	appConfig = nil
	bootstrap.Reset()
	viper.Reset()
}
