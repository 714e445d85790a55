package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/starledger/id"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(settleCmd)

	settleCmd.Flags().String("period-end", "", "period end as RFC 3339 (default: the configured period boundary)")
	settleCmd.Flags().String("family", "", "settle a single family")
	settleCmd.Flags().String("child", "", "settle a single child")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := build(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close() //nolint:errcheck // best effort on exit

		if err := a.ledger.Store().Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %s store\n", cfg.Store.Driver)
		return nil
	},
}

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Run one settlement pass",
	Long: `Settle outstanding credit once. With --child only that child is settled;
with --family every credit-enabled child of the family; otherwise every
family, using the distributed lock when Redis is configured.`,
	RunE: runSettle,
}

func runSettle(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close() //nolint:errcheck // best effort on exit

	if err := a.ledger.Start(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	periodEnd, err := periodFlag(cmd)
	if err != nil {
		return err
	}

	if raw, _ := cmd.Flags().GetString("child"); raw != "" {
		childID, err := id.ParseMemberID(raw)
		if err != nil {
			return err
		}
		if periodEnd.IsZero() {
			return fmt.Errorf("--period-end is required with --child")
		}
		st, err := a.ledger.RunSettlement(ctx, childID, periodEnd)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s debt=%d interest=%d limit=%d->%d\n",
			childID, st.DebtAmount, st.InterestCalculated, st.CreditLimitBefore, st.CreditLimitAfter)
		return nil
	}

	if raw, _ := cmd.Flags().GetString("family"); raw != "" {
		famID, err := id.ParseFamilyID(raw)
		if err != nil {
			return err
		}
		if periodEnd.IsZero() {
			return fmt.Errorf("--period-end is required with --family")
		}
		results, err := a.ledger.RunFamilySettlement(ctx, famID, periodEnd)
		if err != nil {
			return err
		}
		for _, res := range results {
			switch {
			case res.Err == nil:
				fmt.Fprintf(out, "%s settled interest=%d\n", res.ChildID, res.Settlement.InterestCalculated)
			case res.Skipped():
				fmt.Fprintf(out, "%s skipped: %v\n", res.ChildID, res.Err)
			default:
				fmt.Fprintf(out, "%s failed: %v\n", res.ChildID, res.Err)
			}
		}
		return nil
	}

	r, err := a.runner()
	if err != nil {
		return err
	}
	rep, err := r.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "period %s: settled=%d skipped=%d failed=%d locked=%d\n",
		rep.PeriodEnd.Format(time.RFC3339), rep.Settled, rep.Skipped, rep.Failed, rep.Locked)
	if rep.Failed > 0 {
		return fmt.Errorf("%d settlements failed", rep.Failed)
	}
	return nil
}

func periodFlag(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("period-end")
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--period-end: %w", err)
	}
	return t, nil
}
