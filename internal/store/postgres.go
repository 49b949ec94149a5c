package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pestline/pestline/internal/db"
	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/quote"
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	q       querier
	tx      pgx.Tx
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, q: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS company_pricing_settings (
	company_id           TEXT PRIMARY KEY,
	base_home_sq_ft      DOUBLE PRECISION NOT NULL DEFAULT 1500,
	home_sq_ft_interval  DOUBLE PRECISION NOT NULL DEFAULT 500,
	max_home_sq_ft       DOUBLE PRECISION NOT NULL DEFAULT 5000,
	base_yard_acres      DOUBLE PRECISION NOT NULL DEFAULT 0.25,
	yard_acres_interval  DOUBLE PRECISION NOT NULL DEFAULT 0.25,
	max_yard_acres       DOUBLE PRECISION NOT NULL DEFAULT 2,
	base_linear_feet     DOUBLE PRECISION NOT NULL DEFAULT 0,
	linear_feet_interval DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_linear_feet      DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS service_plans (
	id                  TEXT PRIMARY KEY,
	company_id          TEXT NOT NULL,
	plan_name           TEXT NOT NULL,
	plan_category       TEXT NOT NULL DEFAULT 'standard',
	initial_price       NUMERIC(12,2) NOT NULL DEFAULT 0,
	recurring_price     NUMERIC(12,2) NOT NULL DEFAULT 0,
	billing_frequency   TEXT NOT NULL DEFAULT '',
	home_size_pricing   JSONB,
	yard_size_pricing   JSONB,
	linear_feet_pricing JSONB,
	is_active           BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS company_discounts (
	id                       TEXT PRIMARY KEY,
	company_id               TEXT NOT NULL,
	discount_name            TEXT NOT NULL DEFAULT '',
	discount_type            TEXT NOT NULL,
	discount_value           NUMERIC(12,2) NOT NULL,
	applies_to_price         TEXT NOT NULL DEFAULT 'both',
	recurring_discount_type  TEXT,
	recurring_discount_value NUMERIC(12,2),
	is_active                BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS customers (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS service_addresses (
	id                TEXT PRIMARY KEY,
	company_id        TEXT NOT NULL,
	customer_id       TEXT NOT NULL REFERENCES customers(id),
	street_address    TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	zip_code          TEXT NOT NULL DEFAULT '',
	home_size_range   TEXT NOT NULL DEFAULT '',
	yard_size_range   TEXT NOT NULL DEFAULT '',
	linear_feet_range TEXT NOT NULL DEFAULT '',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY,
	company_id         TEXT NOT NULL,
	customer_id        TEXT NOT NULL,
	campaign_id        TEXT,
	service_address_id TEXT,
	lead_source        TEXT NOT NULL,
	lead_status        TEXT NOT NULL,
	comments           TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quotes (
	id                    TEXT PRIMARY KEY,
	company_id            TEXT NOT NULL,
	customer_id           TEXT NOT NULL,
	lead_id               TEXT,
	service_address_id    TEXT,
	home_size_range       TEXT NOT NULL DEFAULT '',
	yard_size_range       TEXT NOT NULL DEFAULT '',
	linear_feet_range     TEXT NOT NULL DEFAULT '',
	total_initial_price   NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_recurring_price NUMERIC(12,2) NOT NULL DEFAULT 0,
	quote_status          TEXT NOT NULL DEFAULT 'draft',
	version               BIGINT NOT NULL DEFAULT 1,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quote_line_items (
	id                    TEXT PRIMARY KEY,
	quote_id              TEXT NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
	service_plan_id       TEXT NOT NULL,
	plan_name             TEXT NOT NULL DEFAULT '',
	initial_price         NUMERIC(12,2) NOT NULL DEFAULT 0,
	recurring_price       NUMERIC(12,2) NOT NULL DEFAULT 0,
	final_initial_price   NUMERIC(12,2) NOT NULL DEFAULT 0,
	final_recurring_price NUMERIC(12,2) NOT NULL DEFAULT 0,
	discount_id           TEXT,
	discount_percentage   NUMERIC(5,2) NOT NULL DEFAULT 0,
	discount_amount       NUMERIC(12,2) NOT NULL DEFAULT 0,
	is_custom_priced      BOOLEAN NOT NULL DEFAULT false,
	display_order         INTEGER NOT NULL DEFAULT 0,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS email_logs (
	id              TEXT PRIMARY KEY,
	company_id      TEXT NOT NULL,
	customer_id     TEXT,
	campaign_id     TEXT,
	lead_id         TEXT,
	message_id      TEXT NOT NULL UNIQUE,
	recipient_email TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'sent',
	bounce_type     TEXT NOT NULL DEFAULT '',
	bounce_subtype  TEXT NOT NULL DEFAULT '',
	delivered_at    TIMESTAMPTZ,
	bounced_at      TIMESTAMPTZ,
	complained_at   TIMESTAMPTZ,
	opened_at       TIMESTAMPTZ,
	clicked_at      TIMESTAMPTZ,
	last_event      JSONB,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS email_suppression_list (
	company_id         TEXT NOT NULL,
	email_address      TEXT NOT NULL,
	suppression_reason TEXT NOT NULL,
	source             TEXT NOT NULL,
	notes              TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company_id, email_address)
);

CREATE TABLE IF NOT EXISTS activities (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL,
	entity_type   TEXT NOT NULL,
	entity_id     TEXT NOT NULL,
	activity_type TEXT NOT NULL,
	notes         TEXT NOT NULL DEFAULT '',
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_quotes_company ON quotes(company_id);
CREATE INDEX IF NOT EXISTS idx_quotes_service_address ON quotes(service_address_id);
CREATE INDEX IF NOT EXISTS idx_quote_line_items_quote ON quote_line_items(quote_id);
CREATE INDEX IF NOT EXISTS idx_service_addresses_customer ON service_addresses(customer_id);
CREATE INDEX IF NOT EXISTS idx_leads_campaign ON leads(company_id, customer_id, campaign_id);
CREATE INDEX IF NOT EXISTS idx_activities_entity ON activities(entity_type, entity_id);
`

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InTx runs fn inside a transaction. Nested calls reuse the open one.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx quote.Store) error) error {
	return s.withTx(ctx, func(tx *PostgresStore) error { return fn(tx) })
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *PostgresStore) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PostgresStore{pool: s.pool, q: tx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit tx")
	}
	return nil
}

// --- Quotes ---

const quoteColumns = `id, company_id, customer_id, lead_id, service_address_id, home_size_range, yard_size_range, linear_feet_range, total_initial_price, total_recurring_price, quote_status, version, created_at, updated_at`

func scanQuote(row pgx.Row) (*model.Quote, error) {
	var q model.Quote
	var leadID, addressID *string
	err := row.Scan(&q.ID, &q.CompanyID, &q.CustomerID, &leadID, &addressID,
		&q.HomeSizeRange, &q.YardSizeRange, &q.LinearFeetRange,
		&q.TotalInitialPrice, &q.TotalRecurringPrice, &q.QuoteStatus, &q.Version,
		&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	q.LeadID = deref(leadID)
	q.ServiceAddressID = deref(addressID)
	return &q, nil
}

// GetQuote returns a quote or nil if it does not exist.
func (s *PostgresStore) GetQuote(ctx context.Context, id string) (*model.Quote, error) {
	q, err := scanQuote(s.q.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get quote %s", id)
	}
	return q, nil
}

// LockQuote reads a quote with a row lock held until the transaction ends.
func (s *PostgresStore) LockQuote(ctx context.Context, id string) (*model.Quote, error) {
	q, err := scanQuote(s.q.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lock quote %s", id)
	}
	return q, nil
}

// CreateQuote inserts a quote and its line items. IDs are assigned when
// empty.
func (s *PostgresStore) CreateQuote(ctx context.Context, q *model.Quote) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.Version == 0 {
		q.Version = 1
	}
	if q.QuoteStatus == "" {
		q.QuoteStatus = "draft"
	}
	now := time.Now().UTC()
	q.CreatedAt, q.UpdatedAt = now, now

	return s.withTx(ctx, func(tx *PostgresStore) error {
		_, err := tx.q.Exec(ctx,
			`INSERT INTO quotes (`+quoteColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			q.ID, q.CompanyID, q.CustomerID, nullable(q.LeadID), nullable(q.ServiceAddressID),
			q.HomeSizeRange, q.YardSizeRange, q.LinearFeetRange,
			q.TotalInitialPrice, q.TotalRecurringPrice, q.QuoteStatus, q.Version, now, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert quote %s", q.ID)
		}
		for i := range q.LineItems {
			it := &q.LineItems[i]
			if it.ID == "" {
				it.ID = uuid.New().String()
			}
			it.QuoteID = q.ID
			_, err := tx.q.Exec(ctx,
				`INSERT INTO quote_line_items (id, quote_id, service_plan_id, plan_name, initial_price, recurring_price, final_initial_price, final_recurring_price, discount_id, discount_percentage, discount_amount, is_custom_priced, display_order) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				it.ID, it.QuoteID, it.ServicePlanID, it.PlanName, it.InitialPrice, it.RecurringPrice,
				it.FinalInitialPrice, it.FinalRecurringPrice, it.DiscountID, it.DiscountPercentage,
				it.DiscountAmount, it.IsCustomPriced, it.DisplayOrder,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: insert line item %s", it.ID)
			}
		}
		return nil
	})
}

// UpdateQuoteSizes stores the quote's size selection.
func (s *PostgresStore) UpdateQuoteSizes(ctx context.Context, quoteID string, sizes model.SizeSelection) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE quotes SET home_size_range = $1, yard_size_range = $2, linear_feet_range = $3, updated_at = now() WHERE id = $4`,
		sizes.HomeSizeRange, sizes.YardSizeRange, sizes.LinearFeetRange, quoteID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update quote sizes %s", quoteID)
	}
	return checkTag(tag, "quote", quoteID)
}

// UpdateQuoteTotals writes totals if the quote is still at version.
func (s *PostgresStore) UpdateQuoteTotals(ctx context.Context, quoteID string, version int64, initial, recurring float64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE quotes SET total_initial_price = $1, total_recurring_price = $2, version = version + 1, updated_at = now() WHERE id = $3 AND version = $4`,
		initial, recurring, quoteID, version,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update quote totals %s", quoteID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(quote.ErrStaleQuote, "postgres: quote %s not at version %d", quoteID, version)
	}
	return nil
}

// ListQuoteIDsByServiceAddress lists quotes priced against an address.
func (s *PostgresStore) ListQuoteIDsByServiceAddress(ctx context.Context, addressID string) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM quotes WHERE service_address_id = $1 ORDER BY id`, addressID)
}

// ListQuoteIDsByCompany lists every quote of a company.
func (s *PostgresStore) ListQuoteIDsByCompany(ctx context.Context, companyID string) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM quotes WHERE company_id = $1 ORDER BY id`, companyID)
}

func (s *PostgresStore) listIDs(ctx context.Context, sql, arg string) ([]string, error) {
	rows, err := s.q.Query(ctx, sql, arg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quote ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan quote ids")
	}
	return ids, nil
}

// --- Line items ---

const lineItemSelect = `SELECT li.id, li.quote_id, li.service_plan_id, li.plan_name, li.initial_price, li.recurring_price,
	li.final_initial_price, li.final_recurring_price, li.discount_id, li.discount_percentage,
	li.discount_amount, li.is_custom_priced, li.display_order,
	p.id, p.company_id, p.plan_name, p.plan_category, p.initial_price, p.recurring_price,
	p.billing_frequency, p.home_size_pricing, p.yard_size_pricing, p.linear_feet_pricing, p.is_active
FROM quote_line_items li
LEFT JOIN service_plans p ON p.id = li.service_plan_id
WHERE li.quote_id = $1
ORDER BY li.display_order, li.id`

// ListLineItems returns a quote's line items with their plans joined.
func (s *PostgresStore) ListLineItems(ctx context.Context, quoteID string) ([]model.QuoteLineItem, error) {
	rows, err := s.q.Query(ctx, lineItemSelect, quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list line items %s", quoteID)
	}
	defer rows.Close()

	var items []model.QuoteLineItem
	for rows.Next() {
		var it model.QuoteLineItem
		var pr planRow
		dest := append([]any{
			&it.ID, &it.QuoteID, &it.ServicePlanID, &it.PlanName, &it.InitialPrice, &it.RecurringPrice,
			&it.FinalInitialPrice, &it.FinalRecurringPrice, &it.DiscountID, &it.DiscountPercentage,
			&it.DiscountAmount, &it.IsCustomPriced, &it.DisplayOrder,
		}, pr.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan line item")
		}
		if it.ServicePlan, err = pr.plan(); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate line items")
	}
	return items, nil
}

// UpdateLineItemPrices writes recalculated prices onto a line item.
func (s *PostgresStore) UpdateLineItemPrices(ctx context.Context, itemID string, p model.LineItemPrices) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE quote_line_items SET initial_price = $1, recurring_price = $2, final_initial_price = $3, final_recurring_price = $4, updated_at = now() WHERE id = $5`,
		p.InitialPrice, p.RecurringPrice, p.FinalInitialPrice, p.FinalRecurringPrice, itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update line item %s", itemID)
	}
	return checkTag(tag, "line item", itemID)
}

// --- Pricing configuration ---

// GetPricingSettings returns a company's settings or nil.
func (s *PostgresStore) GetPricingSettings(ctx context.Context, companyID string) (*model.CompanyPricingSettings, error) {
	var ps model.CompanyPricingSettings
	err := s.q.QueryRow(ctx,
		`SELECT company_id, base_home_sq_ft, home_sq_ft_interval, max_home_sq_ft, base_yard_acres, yard_acres_interval, max_yard_acres, base_linear_feet, linear_feet_interval, max_linear_feet, updated_at FROM company_pricing_settings WHERE company_id = $1`,
		companyID,
	).Scan(&ps.CompanyID, &ps.BaseHomeSqFt, &ps.HomeSqFtInterval, &ps.MaxHomeSqFt,
		&ps.BaseYardAcres, &ps.YardAcresInterval, &ps.MaxYardAcres,
		&ps.BaseLinearFeet, &ps.LinearFeetInterval, &ps.MaxLinearFeet, &ps.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get pricing settings %s", companyID)
	}
	return &ps, nil
}

// UpsertPricingSettings inserts or replaces a company's settings.
func (s *PostgresStore) UpsertPricingSettings(ctx context.Context, ps model.CompanyPricingSettings) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO company_pricing_settings (company_id, base_home_sq_ft, home_sq_ft_interval, max_home_sq_ft, base_yard_acres, yard_acres_interval, max_yard_acres, base_linear_feet, linear_feet_interval, max_linear_feet, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (company_id) DO UPDATE SET
			base_home_sq_ft = EXCLUDED.base_home_sq_ft, home_sq_ft_interval = EXCLUDED.home_sq_ft_interval, max_home_sq_ft = EXCLUDED.max_home_sq_ft,
			base_yard_acres = EXCLUDED.base_yard_acres, yard_acres_interval = EXCLUDED.yard_acres_interval, max_yard_acres = EXCLUDED.max_yard_acres,
			base_linear_feet = EXCLUDED.base_linear_feet, linear_feet_interval = EXCLUDED.linear_feet_interval, max_linear_feet = EXCLUDED.max_linear_feet,
			updated_at = now()`,
		ps.CompanyID, ps.BaseHomeSqFt, ps.HomeSqFtInterval, ps.MaxHomeSqFt,
		ps.BaseYardAcres, ps.YardAcresInterval, ps.MaxYardAcres,
		ps.BaseLinearFeet, ps.LinearFeetInterval, ps.MaxLinearFeet,
	)
	return eris.Wrapf(err, "postgres: upsert pricing settings %s", ps.CompanyID)
}

const planColumns = `id, company_id, plan_name, plan_category, initial_price, recurring_price, billing_frequency, home_size_pricing, yard_size_pricing, linear_feet_pricing, is_active`

// GetServicePlan returns a plan or nil.
func (s *PostgresStore) GetServicePlan(ctx context.Context, id string) (*model.ServicePlan, error) {
	var pr planRow
	err := s.q.QueryRow(ctx, `SELECT `+planColumns+` FROM service_plans WHERE id = $1`, id).Scan(pr.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get service plan %s", id)
	}
	return pr.plan()
}

// ListServicePlans returns a company's plans ordered by name.
func (s *PostgresStore) ListServicePlans(ctx context.Context, companyID string) ([]model.ServicePlan, error) {
	rows, err := s.q.Query(ctx, `SELECT `+planColumns+` FROM service_plans WHERE company_id = $1 ORDER BY plan_name, id`, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list service plans for %s", companyID)
	}
	defer rows.Close()

	var plans []model.ServicePlan
	for rows.Next() {
		var pr planRow
		if err := rows.Scan(pr.dest()...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan service plan")
		}
		p, err := pr.plan()
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, eris.Wrap(rows.Err(), "postgres: iterate service plans")
}

// UpsertServicePlans bulk loads plans through a temp table.
func (s *PostgresStore) UpsertServicePlans(ctx context.Context, plans []model.ServicePlan) (int64, error) {
	rows := make([][]any, 0, len(plans))
	for _, p := range plans {
		home, err := encodePricing(p.HomeSizePricing)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode plan %s", p.ID)
		}
		yard, err := encodePricing(p.YardSizePricing)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode plan %s", p.ID)
		}
		linear, err := encodePricing(p.LinearFeetPricing)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode plan %s", p.ID)
		}
		category := p.PlanCategory
		if category == "" {
			category = model.PlanCategoryStandard
		}
		rows = append(rows, []any{
			p.ID, p.CompanyID, p.PlanName, category, p.InitialPrice, p.RecurringPrice,
			p.BillingFrequency, home, yard, linear, p.IsActive,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, s.tx, db.UpsertConfig{
		Table:        "service_plans",
		Columns:      strings.Split(strings.ReplaceAll(planColumns, " ", ""), ","),
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert service plans")
	}
	return n, nil
}

// GetDiscount returns a discount or nil.
func (s *PostgresStore) GetDiscount(ctx context.Context, id string) (*model.CompanyDiscount, error) {
	var (
		did, companyID, name, kind, applies string
		value                               float64
		recKind                             *string
		recValue                            *float64
		active                              bool
	)
	err := s.q.QueryRow(ctx,
		`SELECT id, company_id, discount_name, discount_type, discount_value, applies_to_price, recurring_discount_type, recurring_discount_value, is_active FROM company_discounts WHERE id = $1`,
		id,
	).Scan(&did, &companyID, &name, &kind, &value, &applies, &recKind, &recValue, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get discount %s", id)
	}
	return discountFrom(did, companyID, name, kind, value, applies, recKind, recValue, active), nil
}

// UpsertDiscount inserts or replaces a discount.
func (s *PostgresStore) UpsertDiscount(ctx context.Context, d model.CompanyDiscount) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO company_discounts (id, company_id, discount_name, discount_type, discount_value, applies_to_price, recurring_discount_type, recurring_discount_value, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			discount_name = EXCLUDED.discount_name, discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value,
			applies_to_price = EXCLUDED.applies_to_price, recurring_discount_type = EXCLUDED.recurring_discount_type,
			recurring_discount_value = EXCLUDED.recurring_discount_value, is_active = EXCLUDED.is_active`,
		d.ID, d.CompanyID, d.DiscountName, string(d.DiscountType), d.DiscountValue, string(d.AppliesToPrice),
		recurringKind(d), d.RecurringDiscountValue, d.IsActive,
	)
	return eris.Wrapf(err, "postgres: upsert discount %s", d.ID)
}

// --- Service addresses ---

const addressColumns = `id, company_id, customer_id, street_address, city, state, zip_code, home_size_range, yard_size_range, linear_feet_range, updated_at`

func scanAddress(row pgx.Row) (*model.ServiceAddress, error) {
	var a model.ServiceAddress
	err := row.Scan(&a.ID, &a.CompanyID, &a.CustomerID, &a.StreetAddress, &a.City, &a.State, &a.ZipCode,
		&a.HomeSizeRange, &a.YardSizeRange, &a.LinearFeetRange, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetServiceAddress returns an address or nil.
func (s *PostgresStore) GetServiceAddress(ctx context.Context, id string) (*model.ServiceAddress, error) {
	a, err := scanAddress(s.q.QueryRow(ctx, `SELECT `+addressColumns+` FROM service_addresses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get service address %s", id)
	}
	return a, nil
}

// GetPrimaryServiceAddress returns the customer's most recently updated
// address, or nil.
func (s *PostgresStore) GetPrimaryServiceAddress(ctx context.Context, customerID string) (*model.ServiceAddress, error) {
	a, err := scanAddress(s.q.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM service_addresses WHERE customer_id = $1 ORDER BY updated_at DESC, id LIMIT 1`, customerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get primary service address for customer %s", customerID)
	}
	return a, nil
}

// UpdateServiceAddressSizes stores an address's size selection.
func (s *PostgresStore) UpdateServiceAddressSizes(ctx context.Context, id string, sizes model.SizeSelection) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE service_addresses SET home_size_range = $1, yard_size_range = $2, linear_feet_range = $3, updated_at = now() WHERE id = $4`,
		sizes.HomeSizeRange, sizes.YardSizeRange, sizes.LinearFeetRange, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update service address sizes %s", id)
	}
	return checkTag(tag, "service address", id)
}

// --- Email events ---

// GetEmailLogByMessageID returns the log for a provider message id, or nil.
func (s *PostgresStore) GetEmailLogByMessageID(ctx context.Context, messageID string) (*model.EmailLog, error) {
	var l model.EmailLog
	var customerID, campaignID, leadID *string
	err := s.q.QueryRow(ctx,
		`SELECT id, company_id, customer_id, campaign_id, lead_id, message_id, recipient_email, status, bounce_type, bounce_subtype, delivered_at, bounced_at, complained_at, opened_at, clicked_at, last_event, updated_at FROM email_logs WHERE message_id = $1`,
		messageID,
	).Scan(&l.ID, &l.CompanyID, &customerID, &campaignID, &leadID, &l.MessageID, &l.RecipientEmail, &l.Status,
		&l.BounceType, &l.BounceSubtype, &l.DeliveredAt, &l.BouncedAt, &l.ComplainedAt, &l.OpenedAt, &l.ClickedAt,
		&l.LastEvent, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get email log %s", messageID)
	}
	l.CustomerID, l.CampaignID, l.LeadID = deref(customerID), deref(campaignID), deref(leadID)
	return &l, nil
}

// UpdateEmailLog applies a partial update. Nil fields keep their value.
func (s *PostgresStore) UpdateEmailLog(ctx context.Context, id string, u model.EmailLogUpdate) error {
	var event []byte
	if len(u.Event) > 0 {
		event = u.Event
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE email_logs SET
			status = $1,
			bounce_type = COALESCE($2, bounce_type),
			bounce_subtype = COALESCE($3, bounce_subtype),
			delivered_at = COALESCE($4, delivered_at),
			bounced_at = COALESCE($5, bounced_at),
			complained_at = COALESCE($6, complained_at),
			opened_at = COALESCE($7, opened_at),
			clicked_at = COALESCE($8, clicked_at),
			lead_id = COALESCE($9, lead_id),
			last_event = COALESCE($10, last_event),
			updated_at = now()
		WHERE id = $11`,
		string(u.Status), u.BounceType, u.BounceSubtype, u.DeliveredAt, u.BouncedAt, u.ComplainedAt,
		u.OpenedAt, u.ClickedAt, u.LeadID, event, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update email log %s", id)
	}
	return checkTag(tag, "email log", id)
}

// UpsertSuppression adds an address to a company's suppression list.
func (s *PostgresStore) UpsertSuppression(ctx context.Context, e model.SuppressionEntry) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO email_suppression_list (company_id, email_address, suppression_reason, source, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, email_address) DO UPDATE SET
			suppression_reason = EXCLUDED.suppression_reason, source = EXCLUDED.source, notes = EXCLUDED.notes`,
		e.CompanyID, strings.ToLower(strings.TrimSpace(e.Email)), e.Reason, e.Source, e.Notes,
	)
	return eris.Wrapf(err, "postgres: upsert suppression %s", e.Email)
}

// FindCampaignLead returns an existing lead for the customer and campaign,
// or nil.
func (s *PostgresStore) FindCampaignLead(ctx context.Context, companyID, customerID, campaignID string) (*model.Lead, error) {
	var l model.Lead
	var campaign, address *string
	err := s.q.QueryRow(ctx,
		`SELECT id, company_id, customer_id, campaign_id, service_address_id, lead_source, lead_status, comments, created_at FROM leads WHERE company_id = $1 AND customer_id = $2 AND campaign_id = $3 ORDER BY created_at LIMIT 1`,
		companyID, customerID, campaignID,
	).Scan(&l.ID, &l.CompanyID, &l.CustomerID, &campaign, &address, &l.LeadSource, &l.LeadStatus, &l.Comments, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find campaign lead")
	}
	l.CampaignID, l.ServiceAddressID = deref(campaign), deref(address)
	return &l, nil
}

// CreateLead inserts a lead, assigning its id.
func (s *PostgresStore) CreateLead(ctx context.Context, l *model.Lead) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()
	_, err := s.q.Exec(ctx,
		`INSERT INTO leads (id, company_id, customer_id, campaign_id, service_address_id, lead_source, lead_status, comments, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.CompanyID, l.CustomerID, nullable(l.CampaignID), nullable(l.ServiceAddressID),
		l.LeadSource, l.LeadStatus, l.Comments, l.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert lead %s", l.ID)
}

// AppendLeadComment appends a note to a lead's comments, separated by a
// blank line.
func (s *PostgresStore) AppendLeadComment(ctx context.Context, leadID, note string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE leads SET comments = CASE WHEN comments = '' THEN $2 ELSE comments || $3 || $2 END WHERE id = $1`,
		leadID, note, "\n\n",
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append lead comment %s", leadID)
	}
	return checkTag(tag, "lead", leadID)
}

// CreateActivity inserts an activity row, assigning its id.
func (s *PostgresStore) CreateActivity(ctx context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()
	var meta []byte
	if a.Metadata != nil {
		var err error
		if meta, err = json.Marshal(a.Metadata); err != nil {
			return eris.Wrap(err, "postgres: marshal activity metadata")
		}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO activities (id, company_id, entity_type, entity_id, activity_type, notes, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CompanyID, a.EntityType, a.EntityID, a.ActivityType, a.Notes, meta, a.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert activity %s", a.ID)
}

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: %s %s not found", entity, id)
	}
	return nil
}
