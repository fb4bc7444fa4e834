// Command gatewayctl is a thin developer CLI for probing a running
// gateway by hand: health, contract, files, and job submission. It adds
// no capability beyond what the gateway's HTTP API already exposes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	apiKey  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Probe a running comfyendpoints gateway",
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://127.0.0.1:8188", "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("COMFYRT_API_KEY"), "x-api-key header value")

	rootCmd.AddCommand(
		healthCmd(),
		contractCmd(),
		filesCmd(),
		runCmd(),
		jobsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
