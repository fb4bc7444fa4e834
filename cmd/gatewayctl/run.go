package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var payloadFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "POST /run with a JSON input payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			var err error
			if payloadFile == "-" || payloadFile == "" {
				payload, err = readStdinOrEmpty()
			} else {
				payload, err = os.ReadFile(payloadFile)
			}
			if err != nil {
				return err
			}

			status, body, err := doRequest("POST", "/run", payload)
			if err != nil {
				return err
			}
			fmt.Printf("status: %d\n", status)
			printJSON(body)
			return nil
		},
	}
	cmd.Flags().StringVarP(&payloadFile, "file", "f", "", "path to a JSON input payload, or - for stdin (default: stdin)")
	return cmd
}

func readStdinOrEmpty() ([]byte, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return []byte("{}"), nil
	}
	if (info.Mode() & os.ModeCharDevice) != 0 {
		return []byte("{}"), nil
	}
	data := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		data = append(data, buf[:n]...)
		if err != nil {
			break
		}
	}
	if len(data) == 0 {
		return []byte("{}"), nil
	}
	return data, nil
}
