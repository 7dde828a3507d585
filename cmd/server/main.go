// Package main is the fortune server entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// CLI command definitions.
var (
	rootCmd = &cobra.Command{
		Use:           "fortune-server",
		Short:         "Fortune Cookie Network server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Starts the fortune server.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	uploadCmd = &cobra.Command{
		Use:   "upload <file>",
		Short: "Uploads a fortune file to a running server.",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpload,
	}
)

var serveFlags struct {
	configPath string
	envFile    string
	port       int
	logLevel   string
}

var uploadFlags struct {
	addr    string
	timeout string
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.configPath, "config", "config.yaml", "path to config file")
	serveCmd.Flags().StringVar(&serveFlags.envFile, "env-file", ".env", "optional env file loaded before the config")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "override the TCP port")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override the log level")

	uploadCmd.Flags().StringVar(&uploadFlags.addr, "addr", "127.0.0.1:5000", "server address")
	uploadCmd.Flags().StringVar(&uploadFlags.timeout, "timeout", "30s", "give up after this long")

	rootCmd.AddCommand(
		serveCmd,
		uploadCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "execute root command failed"))
		os.Exit(1)
	}
}
