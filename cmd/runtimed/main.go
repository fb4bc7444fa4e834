// Command runtimed is the runtime's process entrypoint: it loads
// configuration, wires observability, and runs the Supervisor until a
// shutdown signal or a child process failure ends it.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "runtimed",
		Short: "comfyendpoints runtime daemon",
		Long:  "Run a Comfy-style graph workflow as an authenticated HTTP endpoint service.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a JSON or YAML config file (optional, flags and env override)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}
