package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel jobs",
	}
	cmd.AddCommand(jobsGetCmd(), jobsCancelCmd())
	return cmd
}

func jobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "GET /jobs/{id}",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doRequest("GET", "/jobs/"+args[0], nil)
			if err != nil {
				return err
			}
			fmt.Printf("status: %d\n", status)
			printJSON(body)
			return nil
		},
	}
}

func jobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "POST /jobs/{id}/cancel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doRequest("POST", "/jobs/"+args[0]+"/cancel", []byte("{}"))
			if err != nil {
				return err
			}
			fmt.Printf("status: %d\n", status)
			printJSON(body)
			return nil
		},
	}
}
