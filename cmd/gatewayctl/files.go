package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func filesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Inspect the file store",
	}
	cmd.AddCommand(filesListCmd(), filesGetCmd())
	return cmd
}

func filesListCmd() *cobra.Command {
	var limit int
	var mediaType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "GET /files",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			if mediaType != "" {
				q.Set("media_type", mediaType)
			}
			path := "/files"
			if encoded := q.Encode(); encoded != "" {
				path += "?" + encoded
			}
			status, body, err := doRequest("GET", path, nil)
			if err != nil {
				return err
			}
			fmt.Printf("status: %d\n", status)
			printJSON(body)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "filter by media type")
	return cmd
}

func filesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <file-id>",
		Short: "GET /files/{id}",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doRequest("GET", "/files/"+args[0], nil)
			if err != nil {
				return err
			}
			fmt.Printf("status: %d\n", status)
			printJSON(body)
			return nil
		},
	}
}
