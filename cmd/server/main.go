// Package main is the entry point for the presentation tools server
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/ppttools/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pptserver",
		Short: "Merge and convert PowerPoint presentations over HTTP",
		Long: `pptserver hosts the merge and convert tools. Each browser session gets a
workspace with one tool per mode; staged files are processed on a worker
pool and results are handed out as revocable leases.

Running pptserver without a subcommand is the same as "pptserver serve".`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default: ./pptserver.yaml)")
	flags.Bool("verbose", false, "enable debug logging")
	flags.String("host", "", "listen host, overrides server.host")
	flags.Int("port", 0, "listen port, overrides server.port")

	root.AddCommand(newServeCmd(), newCheckConfigCmd(), newVersionCmd())
	return root
}

// loadSettings reads config for cmd, letting explicit flags win over file
// and environment
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	v := viper.New()
	flags := cmd.Flags()

	if f := flags.Lookup("host"); f != nil && f.Changed {
		v.Set("server.host", f.Value.String())
	}
	if f := flags.Lookup("port"); f != nil && f.Changed {
		port, _ := flags.GetInt("port")
		v.Set("server.port", port)
	}

	cfgFile, _ := flags.GetString("config")
	settings, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	if verbose, _ := flags.GetBool("verbose"); verbose {
		settings.Log.Level = "debug"
	}
	return settings, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
