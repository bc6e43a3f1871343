package cli

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mcoot/chaosroom/internal/api/response"
)

func staffPath(id, action string) string {
	return "/api/v1/staff/players/" + url.PathEscape(id) + "/" + action
}

func newStaffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manager actions on player records",
	}

	cmd.AddCommand(newStaffListCmd())
	cmd.AddCommand(newStaffCompleteCmd())
	cmd.AddCommand(newStaffCancelCmd())
	cmd.AddCommand(newStaffAdjustCmd())
	cmd.AddCommand(newStaffResetCmd())
	cmd.AddCommand(newStaffAuditCmd())

	return cmd
}

func newStaffListCmd() *cobra.Command {
	var roles string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List player records",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if roles != "" {
				query.Set("role", roles)
			}
			var result []response.Player
			if err := client.Get("/api/v1/staff/players", query, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&roles, "role", "", "Comma separated roles to include")
	return cmd
}

func newStaffCompleteCmd() *cobra.Command {
	var outcome, assignment string
	var wager int64

	cmd := &cobra.Command{
		Use:   "complete <player-id>",
		Short: "Verify a player's active mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"assignment_id": assignment,
				"outcome":       outcome,
				"wager":         wager,
			}
			var result response.Resolution
			if err := client.Post(staffPath(args[0], "complete"), req, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&outcome, "outcome", "WIN", "Outcome label from the mission's table")
	cmd.Flags().Int64Var(&wager, "wager", 0, "Tokens wagered, for wager outcomes")
	cmd.Flags().StringVar(&assignment, "assignment", "", "Only complete this assignment")
	return cmd
}

func newStaffCancelCmd() *cobra.Command {
	var assignment string

	cmd := &cobra.Command{
		Use:   "cancel <player-id>",
		Short: "Cancel a player's active mission without scoring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Player
			req := map[string]string{"assignment_id": assignment}
			if err := client.Post(staffPath(args[0], "cancel"), req, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&assignment, "assignment", "", "Only cancel this assignment")
	return cmd
}

func newStaffAdjustCmd() *cobra.Command {
	var field, reason string
	var delta int64

	cmd := &cobra.Command{
		Use:   "adjust <player-id>",
		Short: "Add to or subtract from a player's score or tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"field":  field,
				"delta":  delta,
				"reason": reason,
			}
			var result response.Player
			if err := client.Post(staffPath(args[0], "adjust"), req, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&field, "field", "tokens", "score or tokens")
	cmd.Flags().Int64Var(&delta, "delta", 0, "Signed amount to apply (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")
	_ = cmd.MarkFlagRequired("delta")
	return cmd
}

func newStaffResetCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reset <player-id>",
		Short: "Clear a player's mission and category lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Player
			req := map[string]string{"reason": reason}
			if err := client.Post(staffPath(args[0], "reset"), req, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")
	return cmd
}

func newStaffAuditCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit <player-id>",
		Short: "Show staff actions taken on a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			var result response.Audit
			if err := client.Get(staffPath(args[0], "audit"), query, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries (server default when 0)")
	return cmd
}

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Superadmin commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "role <player-id> <participant|manager>",
		Short: "Approve, reject or revoke staff access",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Player
			req := map[string]string{"role": args[1]}
			if err := client.Put("/api/v1/admin/players/"+url.PathEscape(args[0])+"/role", req, &result); err != nil {
				return err
			}

			out(cmd).Print(result)
			return nil
		},
	})

	return cmd
}
