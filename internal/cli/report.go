package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/ledger"
)

func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	var storeID string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a store's payable and capital totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.close() }()

			balance, err := e.service.GetBalance(cmd.Context(), storeID)
			if err != nil {
				return err
			}
			return e.out.Success(balance, func(w io.Writer) {
				m := e.out.Money
				tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
				fmt.Fprintf(tw, "Toko\t%s\n", balance.StoreID)
				fmt.Fprintf(tw, "Total hutang\t%s\n", m.Format(balance.TotalPayable))
				fmt.Fprintf(tw, "Total modal\t%s\n", m.Format(balance.TotalPaid))
				fmt.Fprintf(tw, "Saldo\t%s\n", m.Format(balance.Balance))
				fmt.Fprintf(tw, "Belum lunas\t%s\n", m.Format(balance.Outstanding))
				fmt.Fprintf(tw, "Kredit\t%s\n", m.Format(balance.AvailableCredit))
				_ = tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&storeID, "store", "main-store", "store id")
	return cmd
}

func NewEntriesCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		storeID  string
		openOnly bool
	)

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List payable entries, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.close() }()

			entries, err := e.service.ListEntries(cmd.Context(), storeID, openOnly)
			if err != nil {
				return err
			}
			return e.out.Success(entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "Tidak ada hutang")
					return
				}
				m := e.out.Money
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTANGGAL\tBARANG\tHUTANG\tDIBAYAR\tSISA")
				for _, entry := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						entry.ID,
						entry.CreatedAt.Local().Format(time.DateTime),
						entry.Item,
						m.Format(entry.Amount),
						m.Format(entry.AmountPaid),
						m.Format(entry.Outstanding()))
				}
				_ = tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&storeID, "store", "main-store", "store id")
	cmd.Flags().BoolVar(&openOnly, "open", false, "only entries that are not fully paid")
	return cmd
}

func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var storeID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check ledger invariants for a store",
		Long: `Recompute every entry's paid amount and every payment's remaining amount
from the allocation rows. Exits 1 when any row disagrees. Nothing is repaired.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.close() }()

			report, err := e.service.Verify(cmd.Context(), storeID)
			if errors.Is(err, ledger.ErrInvariantViolation) {
				if outErr := e.out.Error(err.Error(), report); outErr != nil {
					return outErr
				}
				if e.out.Format != "json" {
					printViolations(e.out.Writer, report)
				}
				return NewExitError(ExitFailure, fmt.Sprintf("%d ledger violation(s) in %s", len(report.Violations), report.StoreID))
			}
			if err != nil {
				return err
			}
			return e.out.Success(report, func(w io.Writer) {
				fmt.Fprintf(w, "OK: %d hutang, %d modal, tidak ada selisih\n", report.Entries, report.Payments)
			})
		},
	}

	cmd.Flags().StringVar(&storeID, "store", "main-store", "store id")
	return cmd
}

func printViolations(w io.Writer, report domain.VerifyReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tROW\tEXPECTED\tACTUAL")
	for _, v := range report.Violations {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", v.Kind, v.RowID, v.Expected, v.Actual)
	}
	_ = tw.Flush()
}
