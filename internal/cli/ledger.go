package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"modalku/backend/internal/domain"
)

func NewPayCommand(rootOpts *RootOptions) *cobra.Command {
	var req domain.CapitalRequest

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Record a capital contribution and settle open debt",
		Long: `Record a capital contribution. The amount is read the way it is typed
in chat: "8000", "8.000", "Rp 8.000", "8rb", "1,5jt".`,
		Example: `  ledgerctl pay --store main-store --amount 8rb --note "transfer BCA"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.close() }()

			if req.Raw == "" {
				req.Raw = req.Amount
			}
			resp, err := e.service.RecordCapital(operatorContext(cmd.Context()), req)
			if err != nil {
				return err
			}
			return e.out.Success(resp, func(w io.Writer) {
				fmt.Fprint(w, resp.Confirmation)
			})
		},
	}

	cmd.Flags().StringVar(&req.StoreID, "store", "main-store", "store id")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "amount of the contribution")
	cmd.Flags().StringVar(&req.Note, "note", "", "free-text note")
	cmd.Flags().StringVar(&req.Sender, "sender", "ledgerctl", "who sent the money")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func NewSaleCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		req  domain.SaleRequest
		cost int64
	)

	cmd := &cobra.Command{
		Use:     "sale",
		Short:   "Record a stock-out sale and its payable entry",
		Example: `  ledgerctl sale --store main-store --product prd-kopi --qty 3 --price 3500`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.close() }()

			if cmd.Flags().Changed("cost") {
				req.CostPrice = &cost
			}
			resp, err := e.service.RecordSale(operatorContext(cmd.Context()), req)
			if err != nil {
				return err
			}
			return e.out.Success(resp, func(w io.Writer) {
				fmt.Fprintf(w, "Transaksi %s\n", resp.Transaction.ID)
				fmt.Fprint(w, resp.Confirmation)
			})
		},
	}

	cmd.Flags().StringVar(&req.StoreID, "store", "main-store", "store id")
	cmd.Flags().StringVar(&req.ProductID, "product", "", "product id")
	cmd.Flags().Int64Var(&req.Qty, "qty", 1, "quantity sold")
	cmd.Flags().Int64Var(&req.UnitPrice, "price", 0, "selling price per unit")
	cmd.Flags().Int64Var(&cost, "cost", 0, "cost price per unit, overrides the product's")
	cmd.Flags().StringVar(&req.Note, "note", "", "free-text note")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}

func NewVoidCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "void <transaction-id>",
		Short: "Void a sale and release the credit it consumed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.close() }()

			result, err := e.service.VoidSale(operatorContext(cmd.Context()), args[0])
			if err != nil {
				return err
			}
			return e.out.Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "Transaksi %s dibatalkan\n", result.TransactionID)
				fmt.Fprintf(w, "Kredit kembali: %s\n", e.out.Money.Format(result.CreditReleased))
			})
		},
	}

	return cmd
}
