package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/chaosroom/internal/api/response"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Health

			if err := client.Get("/api/v1/health", nil, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}
}
