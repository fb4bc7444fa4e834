package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "GET /healthz",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doRequest("GET", "/healthz", nil)
			if err != nil {
				return err
			}
			fmt.Printf("status: %d\n", status)
			printJSON(body)
			return nil
		},
	}
}

func contractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contract",
		Short: "GET /contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doRequest("GET", "/contract", nil)
			if err != nil {
				return err
			}
			fmt.Printf("status: %d\n", status)
			printJSON(body)
			return nil
		},
	}
}
