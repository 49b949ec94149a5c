package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/export"
	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/pricing"
)

var (
	sizesPlanID  string
	sizesOutPath string
)

var sizesCmd = &cobra.Command{
	Use:   "sizes",
	Short: "Inspect a company's size brackets",
}

var sizesShowCmd = &cobra.Command{
	Use:   "show <company-id>",
	Short: "Print the home, yard and linear feet brackets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "sizes")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		settings, err := loadSettings(ctx, st, args[0])
		if err != nil {
			return err
		}

		var plan *model.ServicePlan
		if sizesPlanID != "" {
			plan, err = st.GetServicePlan(ctx, sizesPlanID)
			if err != nil {
				return eris.Wrap(err, "sizes show")
			}
			if plan == nil || plan.CompanyID != args[0] {
				return eris.Errorf("sizes show: service plan %s not found for company %s", sizesPlanID, args[0])
			}
		}

		formatSizeOptions(os.Stdout, *settings, plan)
		return nil
	},
}

var sizesExportCmd = &cobra.Command{
	Use:   "export <company-id>",
	Short: "Write the brackets and per-plan increases to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "sizes")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		settings, err := loadSettings(ctx, st, args[0])
		if err != nil {
			return err
		}
		plans, err := st.ListServicePlans(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sizes export")
		}

		f, err := os.Create(sizesOutPath)
		if err != nil {
			return eris.Wrap(err, "sizes export: create file")
		}
		if err := export.WritePricingSheet(f, *settings, plans); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "sizes export: close file")
		}

		zap.L().Info("pricing sheet written",
			zap.String("company_id", args[0]),
			zap.Int("plans", len(plans)),
			zap.String("path", sizesOutPath),
		)
		return nil
	},
}

func init() {
	sizesShowCmd.Flags().StringVar(&sizesPlanID, "plan", "", "service plan id to price the brackets with")
	sizesExportCmd.Flags().StringVar(&sizesOutPath, "out", "pricing.xlsx", "output workbook path")

	sizesCmd.AddCommand(sizesShowCmd, sizesExportCmd)
	rootCmd.AddCommand(sizesCmd)
}

type settingsGetter interface {
	GetPricingSettings(ctx context.Context, companyID string) (*model.CompanyPricingSettings, error)
}

func loadSettings(ctx context.Context, st settingsGetter, companyID string) (*model.CompanyPricingSettings, error) {
	settings, err := st.GetPricingSettings(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "load pricing settings")
	}
	if settings == nil {
		return nil, eris.Errorf("no pricing settings for company %s", companyID)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// formatSizeOptions writes one table per configured dimension to out.
func formatSizeOptions(out io.Writer, settings model.CompanyPricingSettings, plan *model.ServicePlan) {
	sections := []struct {
		title string
		opts  []pricing.SizeOption
	}{
		{"Home", pricing.GenerateHomeSizeOptions(settings, planPricing(plan, func(p *model.ServicePlan) *model.SizePricing { return p.HomeSizePricing }))},
		{"Yard", pricing.GenerateYardSizeOptions(settings, planPricing(plan, func(p *model.ServicePlan) *model.SizePricing { return p.YardSizePricing }))},
		{"Linear Feet", pricing.GenerateLinearFeetOptions(settings, planPricing(plan, func(p *model.ServicePlan) *model.SizePricing { return p.LinearFeetPricing }))},
	}

	for _, s := range sections {
		if len(s.opts) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(out, "%s\n", s.title)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "VALUE\tLABEL\tINITIAL\tRECURRING")
		_, _ = fmt.Fprintln(w, "-----\t-----\t-------\t---------")
		for _, o := range s.opts {
			recurring := o.RecurringIncrease
			if plan != nil && plan.IsOneTime() {
				recurring = 0
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\n", o.Value, o.Label, o.InitialIncrease, recurring)
		}
		_ = w.Flush()
		_, _ = fmt.Fprintln(out)
	}
}

func planPricing(plan *model.ServicePlan, pick func(*model.ServicePlan) *model.SizePricing) *model.SizePricing {
	if plan == nil {
		return nil
	}
	return pick(plan)
}
