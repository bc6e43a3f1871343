package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mcoot/chaosroom/internal/api/response"
)

func newMissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Start, forfeit and expire missions",
	}

	cmd.AddCommand(newMissionRollCmd())
	cmd.AddCommand(newMissionStartCmd())
	cmd.AddCommand(newMissionForfeitCmd())
	cmd.AddCommand(newMissionExpireCmd())

	return cmd
}

func newMissionRollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roll <HEART|SPADE>",
		Short: "Start a mission at a random level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Player
			req := map[string]any{"category": args[0]}
			if err := client.Post("/api/v1/players/me/missions", req, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}
}

func newMissionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <HEART|SPADE> <level>",
		Short: "Start a specific mission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("level must be a number: %w", err)
			}

			var result response.Player
			req := map[string]any{"category": args[0], "level": level}
			if err := client.Post("/api/v1/players/me/missions", req, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}
}

func newMissionForfeitCmd() *cobra.Command {
	var assignment string

	cmd := &cobra.Command{
		Use:   "forfeit",
		Short: "Abandon the active mission without scoring",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Player
			req := map[string]string{"assignment_id": assignment}
			if err := client.Delete("/api/v1/players/me/missions/active", req, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&assignment, "assignment", "", "Only forfeit this assignment")
	return cmd
}

func newMissionExpireCmd() *cobra.Command {
	var assignment string

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Resolve the active mission once its timer has run out",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Resolution
			req := map[string]string{"assignment_id": assignment}
			if err := client.Post("/api/v1/players/me/missions/active/expire", req, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&assignment, "assignment", "", "Only expire this assignment")
	return cmd
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Pay tokens to replay the category you just played",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Player
			if err := client.Post("/api/v1/players/me/unlock", nil, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}
}

func newSkipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Buy immunity from the current chaos rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Player
			if err := client.Post("/api/v1/players/me/skip-rule", nil, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}
}
