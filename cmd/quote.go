package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/pricing"
	"github.com/pestline/pestline/internal/quote"
)

var (
	recalcHome   string
	recalcYard   string
	recalcLinear string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Quote maintenance commands",
}

var quoteRecalcCmd = &cobra.Command{
	Use:   "recalc <quote-id>",
	Short: "Recalculate a quote, optionally with new size ranges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		upd, err := sizeUpdateFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "recalc")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recalc := quote.NewRecalculator(st, quote.WithConcurrency(cfg.Quote.MaxConcurrentRecalcs))
		if err := recalc.Recalculate(ctx, args[0], upd); err != nil {
			return eris.Wrap(err, "quote recalc")
		}

		q, err := st.GetQuote(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "quote recalc: reload")
		}
		if q == nil {
			return eris.Errorf("quote recalc: quote %s not found", args[0])
		}
		items, err := st.ListLineItems(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "quote recalc: reload items")
		}
		formatQuote(os.Stdout, q, items)
		return nil
	},
}

var quoteRecalcCompanyCmd = &cobra.Command{
	Use:   "recalc-company <company-id>",
	Short: "Recalculate every quote of a company with its stored sizes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "recalc")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recalc := quote.NewRecalculator(st, quote.WithConcurrency(cfg.Quote.MaxConcurrentRecalcs))
		res, err := recalc.RecalculateCompany(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("company recalculation complete",
			zap.String("company_id", args[0]),
			zap.Int("quotes", res.Quotes),
			zap.Int("failed", len(res.Failed)),
		)
		if len(res.Failed) > 0 {
			return eris.Errorf("quote recalc-company: %d of %d quotes failed: %v", len(res.Failed), res.Quotes, res.Failed)
		}
		return nil
	},
}

func init() {
	f := quoteRecalcCmd.Flags()
	f.StringVar(&recalcHome, "home", "", `home size range, e.g. "1501-2000" (empty clears)`)
	f.StringVar(&recalcYard, "yard", "", `yard size range, e.g. "0.26-0.5"`)
	f.StringVar(&recalcLinear, "linear", "", `linear feet range, e.g. "101-150"`)

	quoteCmd.AddCommand(quoteRecalcCmd, quoteRecalcCompanyCmd)
	rootCmd.AddCommand(quoteCmd)
}

// sizeUpdateFromFlags sets only the dimensions whose flags were given.
func sizeUpdateFromFlags(cmd *cobra.Command) (quote.SizeUpdate, error) {
	var upd quote.SizeUpdate
	for _, f := range []struct {
		name string
		val  string
		dst  **string
	}{
		{"home", recalcHome, &upd.Home},
		{"yard", recalcYard, &upd.Yard},
		{"linear", recalcLinear, &upd.LinearFeet},
	} {
		if !cmd.Flags().Changed(f.name) {
			continue
		}
		if f.val != "" {
			if _, err := pricing.ParseSizeRange(f.val); err != nil {
				return quote.SizeUpdate{}, eris.Wrapf(err, "--%s", f.name)
			}
		}
		v := f.val
		*f.dst = &v
	}
	return upd, nil
}

// formatQuote writes a quote summary and its line items to out.
func formatQuote(out io.Writer, q *model.Quote, items []model.QuoteLineItem) {
	_, _ = fmt.Fprintf(out, "Quote %s (version %d)\n", q.ID, q.Version)
	_, _ = fmt.Fprintf(out, "Sizes: home=%s yard=%s linear=%s\n", orDash(q.HomeSizeRange), orDash(q.YardSizeRange), orDash(q.LinearFeetRange))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PLAN\tINITIAL\tRECURRING\tFINAL INITIAL\tFINAL RECURRING\tCUSTOM")
	_, _ = fmt.Fprintln(w, "----\t-------\t---------\t-------------\t---------------\t------")
	for _, it := range items {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%t\n",
			it.PlanName, it.InitialPrice, it.RecurringPrice, it.FinalInitialPrice, it.FinalRecurringPrice, it.IsCustomPriced)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "Total: %.2f initial, %.2f recurring\n", q.TotalInitialPrice, q.TotalRecurringPrice)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
