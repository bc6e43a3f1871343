package cli

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mcoot/chaosroom/internal/api/response"
	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/services/leaderboard"
)

func newChaosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chaos",
		Short: "Show the chaos rule in force",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Chaos
			if err := client.Get("/api/v1/chaos", nil, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}
}

func newCatalogCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "catalog [mission-id]",
		Short: "List missions, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				var result catalog.Mission
				if err := client.Get("/api/v1/missions/"+url.PathEscape(args[0]), nil, &result); err != nil {
					return err
				}
				out(cmd).Print(result)
				return nil
			}

			query := url.Values{}
			if category != "" {
				query.Set("category", category)
			}
			var result []catalog.Mission
			if err := client.Get("/api/v1/missions", query, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list HEART or SPADE missions")
	return cmd
}

// leaderboardQuery builds the query shared by leaderboard and its event stream.
// A negative limit leaves the server default.
func leaderboardQuery(by string, participants bool, limit int) url.Values {
	query := url.Values{}
	if by != "" {
		query.Set("by", by)
	}
	query.Set("participants", strconv.FormatBool(participants))
	if limit >= 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return query
}

func newLeaderboardCmd() *cobra.Command {
	var by string
	var participants bool
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []leaderboard.Entry
			if err := client.Get("/api/v1/leaderboard", leaderboardQuery(by, participants, limit), &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&by, "by", "score", "Rank by score or tokens")
	cmd.Flags().BoolVar(&participants, "participants", true, "Exclude staff (--participants=false ranks everyone)")
	cmd.Flags().IntVar(&limit, "limit", leaderboard.DefaultLimit, "Maximum rows (0 for all)")
	return cmd
}
