// Package main implements the command-line interface for the freshen tool.
// It reads a tab-separated image list, decides which images are stale with
// respect to their base image or build context, and rebuilds and pushes them
// via docker buildx.
//
// Usage:
//
//	freshen                  rebuild whatever is stale
//	freshen NAME [NAME...]   additionally force the named images or bases
//	freshen all [NAME...]    rebuild everything except the named exclusions
package main

import (
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/freshen/freshen/pkg/build"
	"github.com/freshen/freshen/pkg/config"
	"github.com/freshen/freshen/pkg/detect"
	"github.com/freshen/freshen/pkg/exitcodes"
	log "github.com/freshen/freshen/pkg/log"
	"github.com/freshen/freshen/pkg/orchestrate"
	"github.com/freshen/freshen/pkg/registry"
	"github.com/freshen/freshen/pkg/version"
)

// Global flag variables
var (
	cfgPath  string
	logLevel string
	dryRun   bool
)

// AppFs defines the filesystem interface to use, allows mocking in tests.
var AppFs = afero.NewOsFs()

// SetFs replaces the current filesystem with the provided one and returns a
// function to restore it. This is primarily used for testing.
func SetFs(newFs afero.Fs) func() {
	oldFs := AppFs
	AppFs = newFs
	return func() { AppFs = oldFs }
}

var rootCmd = &cobra.Command{
	Use:   "freshen [all] [image|base ...]",
	Short: "Rebuild container images that are stale against their base image or build context",
	Long: `freshen reads a tab-separated image list and, for every image, decides
whether its published state still reflects its base image (by layer diff-id)
and its build context (by git history). Stale images are rebuilt and pushed
with docker buildx, in configuration order.

Positional arguments force decisions: image or base names are rebuilt
unconditionally, and the literal "all" as the first argument rebuilds
everything, with any further names acting as exclusions.`,
	Version:       version.String(),
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return exitcodes.Wrap(exitcodes.ExitInputConfigurationError, err)
		}
		log.SetLevel(level)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		account, password, err := credentialsFromEnv()
		if err != nil {
			return err
		}

		specs, err := config.Load(AppFs, cfgPath)
		if err != nil {
			return err
		}

		forceAll, forced := splitArgs(args)

		client := registry.New(account, password)
		orchestrator := &orchestrate.Orchestrator{
			Detector: &detect.Detector{
				Registry:      client,
				History:       detect.GitHistory{},
				AccountPrefix: account,
			},
			Runner:        &build.BuildxRunner{},
			Registry:      client,
			AccountPrefix: account,
			DryRun:        dryRun,
		}
		return orchestrator.Run(cmd.Context(), specs, forced, forceAll)
	},
}

// credentialsFromEnv reads FRESHEN_ACCOUNT (required) and FRESHEN_PASSWORD
// (optional) via viper. A trailing slash on the account prefix is normalized
// away.
func credentialsFromEnv() (account, password string, err error) {
	v := viper.New()
	v.SetEnvPrefix("FRESHEN")
	v.AutomaticEnv()

	account = strings.TrimSuffix(v.GetString("account"), "/")
	if account == "" {
		return "", "", exitcodes.New(exitcodes.ExitMissingEnvironment,
			"FRESHEN_ACCOUNT must name the registry account to publish under")
	}
	return account, v.GetString("password"), nil
}

// splitArgs interprets the positional arguments: a leading "all" switches to
// exclusion semantics for the remaining names.
func splitArgs(args []string) (forceAll bool, forced []string) {
	if len(args) > 0 && args[0] == "all" {
		return true, args[1:]
	}
	return false, args
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "images.conf", "path to the image list")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report build decisions without building")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "set log level (debug, info, warn, error)")
}
