package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"cryptotrack-alerts/internal/alert"
	"cryptotrack-alerts/internal/types"
	"cryptotrack-alerts/lib/helpers"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Manage price alerts",
	}
	cmd.AddCommand(alertsAddCmd(), alertsListCmd())
	return cmd
}

func alertsAddCmd() *cobra.Command {
	var in alert.NewAlert

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Create a price, percentage or volume alert",
		Example: "cryptotrack-alerts alerts add --user 42 --asset btc --type price --condition above --threshold 50000",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := alert.CreateAlert(cmd.Context(), a.store, a.gateway, in)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Alert %s created for %s (%s)\n",
				created.ID, helpers.UpperAsset(created.Asset), describeCondition(created.Condition))
			return nil
		},
	}

	cmd.Flags().StringVar(&in.UserID, "user", "", "owner user id")
	cmd.Flags().StringVar(&in.Asset, "asset", "", "asset slug or ticker, e.g. bitcoin or btc")
	cmd.Flags().StringVar(&in.Kind, "type", "price", "alert type: price, percentage or volume")
	cmd.Flags().StringVar(&in.Direction, "condition", "above", "above or below")
	cmd.Flags().StringVar(&in.Threshold, "threshold", "", "target price, percent change or volume")
	cmd.Flags().BoolVar(&in.NotifyByEmail, "email", true, "notify the owner when the alert triggers")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("threshold")

	return cmd
}

func alertsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			alerts, err := a.store.ListAlerts(cmd.Context())
			if err != nil {
				return err
			}

			renderAlerts(cmd.OutOrStdout(), alerts)
			return nil
		},
	}
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage notification addresses",
	}

	var user types.User
	add := &cobra.Command{
		Use:   "add",
		Short: "Create or update a user's notification address (email or tg:<chat id>)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			user.Email = strings.TrimSpace(user.Email)
			if err := a.store.UpsertUser(cmd.Context(), &user); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ User %s saved\n", user.ID)
			return nil
		},
	}
	add.Flags().StringVar(&user.ID, "id", "", "user id, generated when empty")
	add.Flags().StringVar(&user.Email, "email", "", "notification address")
	_ = add.MarkFlagRequired("email")

	cmd.AddCommand(add)
	return cmd
}

func renderAlerts(w io.Writer, alerts []types.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "User", "Asset", "Condition", "Notify", "Active", "Triggered", "Created"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, a := range alerts {
		triggered := "-"
		if a.TriggeredAt != nil {
			triggered = a.TriggeredAt.Local().Format(time.DateTime)
		}

		table.Append([]string{
			a.ID,
			a.UserID,
			helpers.UpperAsset(a.Asset),
			describeCondition(a.Condition),
			fmt.Sprintf("%t", a.NotifyByEmail),
			fmt.Sprintf("%t", a.Active),
			triggered,
			a.CreatedAt.Local().Format(time.DateTime),
		})
	}

	table.Render()
}

func describeCondition(c types.Condition) string {
	threshold := types.Threshold(c)
	if threshold == nil {
		return fmt.Sprintf("%s (no threshold)", c.Kind())
	}

	switch cond := c.(type) {
	case types.PriceCondition:
		return fmt.Sprintf("price %s $%s", cond.Direction, helpers.FormatPriceUS(*threshold))
	case types.PercentChangeCondition:
		return fmt.Sprintf("24h change %s %s%%", cond.Direction, helpers.FormatPercent(*threshold))
	case types.VolumeCondition:
		return fmt.Sprintf("24h volume >= $%s", helpers.FormatVolumeUS(*threshold))
	default:
		return string(c.Kind())
	}
}

func printJSON(cmd *cobra.Command, v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Errorf("Failed to marshal output: %v", err)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
}
