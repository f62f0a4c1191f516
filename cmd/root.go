package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/SERDSDDAM/SurpadClone/pkg/config"
)

// these are populated by goreleaser when you build a release with that tool.
var (
	version = "head"
	commit  = "head"
	date    = "none"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use: "surpad",
	Long: `The raster ingestion pipeline behind the map viewer.

surpad bundles every process of the pipeline into one binary: 'surpad
serve' runs the HTTP dispatcher that accepts uploads, 'surpad worker'
runs the queue consumer that converts rasters and uploads artifacts,
and 'surpad migrate' applies the database schema. 'surpad submit' is a
small client for pushing a file through a running dispatcher.

Configuration comes from environment variables (see 'surpad configure'
for the file-based alternative stored in ~/.surpad).
`,
	Version: fmt.Sprintf("%v, commit %v, built at %v", version, commit, date),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig resolves and validates configuration and builds the
// process logger from it.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}

	var log zerolog.Logger
	if cfg.Development() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).
			Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}
	return cfg, log, nil
}
