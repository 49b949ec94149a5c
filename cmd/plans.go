package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pestline/pestline/internal/model"
)

var plansFilePath string

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Manage pricing configuration",
}

var plansImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load pricing settings, service plans and discounts from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pf, err := loadPricingFile(plansFilePath)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "plans")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := importPricing(ctx, st, pf)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", plansFilePath),
			zap.Int("settings", res.Settings),
			zap.Int64("plans", res.Plans),
			zap.Int("discounts", res.Discounts),
		)
		return nil
	},
}

func init() {
	plansImportCmd.Flags().StringVar(&plansFilePath, "file", "", "path to YAML file (required)")
	_ = plansImportCmd.MarkFlagRequired("file")

	plansCmd.AddCommand(plansImportCmd)
	rootCmd.AddCommand(plansCmd)
}

// pricingFile is the plans import document.
type pricingFile struct {
	Settings  []model.CompanyPricingSettings `yaml:"settings"`
	Plans     []model.ServicePlan            `yaml:"plans"`
	Discounts []model.CompanyDiscount        `yaml:"discounts"`
}

// loadPricingFile parses and validates path. Discounts without an id get
// a generated one.
func loadPricingFile(path string) (*pricingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "plans import: read file")
	}

	var pf pricingFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, eris.Wrap(err, "plans import: parse yaml")
	}

	for i := range pf.Settings {
		if err := pf.Settings[i].Validate(); err != nil {
			return nil, err
		}
	}
	for i := range pf.Plans {
		if err := pf.Plans[i].Validate(); err != nil {
			return nil, err
		}
	}
	for i := range pf.Discounts {
		if pf.Discounts[i].ID == "" {
			pf.Discounts[i].ID = uuid.NewString()
		}
		if err := pf.Discounts[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &pf, nil
}

type pricingWriter interface {
	UpsertPricingSettings(ctx context.Context, s model.CompanyPricingSettings) error
	UpsertServicePlans(ctx context.Context, plans []model.ServicePlan) (int64, error)
	UpsertDiscount(ctx context.Context, d model.CompanyDiscount) error
}

type importResult struct {
	Settings  int
	Plans     int64
	Discounts int
}

func importPricing(ctx context.Context, st pricingWriter, pf *pricingFile) (*importResult, error) {
	res := &importResult{}
	for _, s := range pf.Settings {
		if err := st.UpsertPricingSettings(ctx, s); err != nil {
			return nil, eris.Wrap(err, "plans import: settings")
		}
		res.Settings++
	}
	if len(pf.Plans) > 0 {
		n, err := st.UpsertServicePlans(ctx, pf.Plans)
		if err != nil {
			return nil, eris.Wrap(err, "plans import: plans")
		}
		res.Plans = n
	}
	for _, d := range pf.Discounts {
		if err := st.UpsertDiscount(ctx, d); err != nil {
			return nil, eris.Wrap(err, "plans import: discounts")
		}
		res.Discounts++
	}
	return res, nil
}
