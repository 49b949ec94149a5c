package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/quote"
)

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	q  sqlQuerier
	tx *sql.Tx
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// A single connection serialises writers, so everything inside InTx must go
// through the transaction.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS company_pricing_settings (
	company_id           TEXT PRIMARY KEY,
	base_home_sq_ft      REAL NOT NULL DEFAULT 1500,
	home_sq_ft_interval  REAL NOT NULL DEFAULT 500,
	max_home_sq_ft       REAL NOT NULL DEFAULT 5000,
	base_yard_acres      REAL NOT NULL DEFAULT 0.25,
	yard_acres_interval  REAL NOT NULL DEFAULT 0.25,
	max_yard_acres       REAL NOT NULL DEFAULT 2,
	base_linear_feet     REAL NOT NULL DEFAULT 0,
	linear_feet_interval REAL NOT NULL DEFAULT 0,
	max_linear_feet      REAL NOT NULL DEFAULT 0,
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS service_plans (
	id                  TEXT PRIMARY KEY,
	company_id          TEXT NOT NULL,
	plan_name           TEXT NOT NULL,
	plan_category       TEXT NOT NULL DEFAULT 'standard',
	initial_price       REAL NOT NULL DEFAULT 0,
	recurring_price     REAL NOT NULL DEFAULT 0,
	billing_frequency   TEXT NOT NULL DEFAULT '',
	home_size_pricing   TEXT,
	yard_size_pricing   TEXT,
	linear_feet_pricing TEXT,
	is_active           INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS company_discounts (
	id                       TEXT PRIMARY KEY,
	company_id               TEXT NOT NULL,
	discount_name            TEXT NOT NULL DEFAULT '',
	discount_type            TEXT NOT NULL,
	discount_value           REAL NOT NULL,
	applies_to_price         TEXT NOT NULL DEFAULT 'both',
	recurring_discount_type  TEXT,
	recurring_discount_value REAL,
	is_active                INTEGER NOT NULL DEFAULT 1
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
	customer_id       TEXT NOT NULL,
	street_address    TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	zip_code          TEXT NOT NULL DEFAULT '',
	home_size_range   TEXT NOT NULL DEFAULT '',
	yard_size_range   TEXT NOT NULL DEFAULT '',
	linear_feet_range TEXT NOT NULL DEFAULT '',
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
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
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
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
	total_initial_price   REAL NOT NULL DEFAULT 0,
	total_recurring_price REAL NOT NULL DEFAULT 0,
	quote_status          TEXT NOT NULL DEFAULT 'draft',
	version               INTEGER NOT NULL DEFAULT 1,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS quote_line_items (
	id                    TEXT PRIMARY KEY,
	quote_id              TEXT NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
	service_plan_id       TEXT NOT NULL,
	plan_name             TEXT NOT NULL DEFAULT '',
	initial_price         REAL NOT NULL DEFAULT 0,
	recurring_price       REAL NOT NULL DEFAULT 0,
	final_initial_price   REAL NOT NULL DEFAULT 0,
	final_recurring_price REAL NOT NULL DEFAULT 0,
	discount_id           TEXT,
	discount_percentage   REAL NOT NULL DEFAULT 0,
	discount_amount       REAL NOT NULL DEFAULT 0,
	is_custom_priced      INTEGER NOT NULL DEFAULT 0,
	display_order         INTEGER NOT NULL DEFAULT 0,
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
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
	delivered_at    DATETIME,
	bounced_at      DATETIME,
	complained_at   DATETIME,
	opened_at       DATETIME,
	clicked_at      DATETIME,
	last_event      TEXT,
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS email_suppression_list (
	company_id         TEXT NOT NULL,
	email_address      TEXT NOT NULL,
	suppression_reason TEXT NOT NULL,
	source             TEXT NOT NULL,
	notes              TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (company_id, email_address)
);

CREATE TABLE IF NOT EXISTS activities (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL,
	entity_type   TEXT NOT NULL,
	entity_id     TEXT NOT NULL,
	activity_type TEXT NOT NULL,
	notes         TEXT NOT NULL DEFAULT '',
	metadata      TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_quotes_company ON quotes(company_id);
CREATE INDEX IF NOT EXISTS idx_quotes_service_address ON quotes(service_address_id);
CREATE INDEX IF NOT EXISTS idx_quote_line_items_quote ON quote_line_items(quote_id);
CREATE INDEX IF NOT EXISTS idx_service_addresses_customer ON service_addresses(customer_id);
CREATE INDEX IF NOT EXISTS idx_leads_campaign ON leads(company_id, customer_id, campaign_id);
CREATE INDEX IF NOT EXISTS idx_activities_entity ON activities(entity_type, entity_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a transaction. Nested calls reuse the open one.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx quote.Store) error) error {
	return s.withTx(ctx, func(tx *SQLiteStore) error { return fn(tx) })
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *SQLiteStore) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&SQLiteStore{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// --- Quotes ---

func (s *SQLiteStore) scanQuote(row scannable, id string) (*model.Quote, error) {
	var q model.Quote
	var leadID, addressID sql.NullString
	err := row.Scan(&q.ID, &q.CompanyID, &q.CustomerID, &leadID, &addressID,
		&q.HomeSizeRange, &q.YardSizeRange, &q.LinearFeetRange,
		&q.TotalInitialPrice, &q.TotalRecurringPrice, &q.QuoteStatus, &q.Version,
		&q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get quote %s", id)
	}
	q.LeadID, q.ServiceAddressID = leadID.String, addressID.String
	return &q, nil
}

func (s *SQLiteStore) GetQuote(ctx context.Context, id string) (*model.Quote, error) {
	return s.scanQuote(s.q.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = ?`, id), id)
}

// LockQuote reads the quote. SQLite has no row locks; the single writer
// connection and the version check in UpdateQuoteTotals serialise updates.
func (s *SQLiteStore) LockQuote(ctx context.Context, id string) (*model.Quote, error) {
	return s.GetQuote(ctx, id)
}

func (s *SQLiteStore) CreateQuote(ctx context.Context, q *model.Quote) error {
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

	return s.withTx(ctx, func(tx *SQLiteStore) error {
		_, err := tx.q.ExecContext(ctx,
			`INSERT INTO quotes (`+quoteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, q.CompanyID, q.CustomerID, nullable(q.LeadID), nullable(q.ServiceAddressID),
			q.HomeSizeRange, q.YardSizeRange, q.LinearFeetRange,
			q.TotalInitialPrice, q.TotalRecurringPrice, q.QuoteStatus, q.Version, now, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert quote %s", q.ID)
		}
		for i := range q.LineItems {
			it := &q.LineItems[i]
			if it.ID == "" {
				it.ID = uuid.New().String()
			}
			it.QuoteID = q.ID
			_, err := tx.q.ExecContext(ctx,
				`INSERT INTO quote_line_items (id, quote_id, service_plan_id, plan_name, initial_price, recurring_price, final_initial_price, final_recurring_price, discount_id, discount_percentage, discount_amount, is_custom_priced, display_order, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				it.ID, it.QuoteID, it.ServicePlanID, it.PlanName, it.InitialPrice, it.RecurringPrice,
				it.FinalInitialPrice, it.FinalRecurringPrice, it.DiscountID, it.DiscountPercentage,
				it.DiscountAmount, it.IsCustomPriced, it.DisplayOrder, now,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert line item %s", it.ID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpdateQuoteSizes(ctx context.Context, quoteID string, sizes model.SizeSelection) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE quotes SET home_size_range = ?, yard_size_range = ?, linear_feet_range = ?, updated_at = ? WHERE id = ?`,
		sizes.HomeSizeRange, sizes.YardSizeRange, sizes.LinearFeetRange, time.Now().UTC(), quoteID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update quote sizes %s", quoteID)
	}
	return checkRowsAffected(res, "quote", quoteID)
}

func (s *SQLiteStore) UpdateQuoteTotals(ctx context.Context, quoteID string, version int64, initial, recurring float64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE quotes SET total_initial_price = ?, total_recurring_price = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		initial, recurring, time.Now().UTC(), quoteID, version,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update quote totals %s", quoteID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(quote.ErrStaleQuote, "sqlite: quote %s not at version %d", quoteID, version)
	}
	return nil
}

func (s *SQLiteStore) ListQuoteIDsByServiceAddress(ctx context.Context, addressID string) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM quotes WHERE service_address_id = ? ORDER BY id`, addressID)
}

func (s *SQLiteStore) ListQuoteIDsByCompany(ctx context.Context, companyID string) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM quotes WHERE company_id = ? ORDER BY id`, companyID)
}

func (s *SQLiteStore) listIDs(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quote ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quote id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate quote ids")
}

// --- Line items ---

func (s *SQLiteStore) ListLineItems(ctx context.Context, quoteID string) ([]model.QuoteLineItem, error) {
	rows, err := s.q.QueryContext(ctx, strings.ReplaceAll(lineItemSelect, "$1", "?"), quoteID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list line items %s", quoteID)
	}
	defer rows.Close() //nolint:errcheck

	var items []model.QuoteLineItem
	for rows.Next() {
		var it model.QuoteLineItem
		var discountID sql.NullString
		var pr planRow
		dest := append([]any{
			&it.ID, &it.QuoteID, &it.ServicePlanID, &it.PlanName, &it.InitialPrice, &it.RecurringPrice,
			&it.FinalInitialPrice, &it.FinalRecurringPrice, &discountID, &it.DiscountPercentage,
			&it.DiscountAmount, &it.IsCustomPriced, &it.DisplayOrder,
		}, pr.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan line item")
		}
		if discountID.Valid {
			it.DiscountID = &discountID.String
		}
		if it.ServicePlan, err = pr.plan(); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate line items")
}

func (s *SQLiteStore) UpdateLineItemPrices(ctx context.Context, itemID string, p model.LineItemPrices) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE quote_line_items SET initial_price = ?, recurring_price = ?, final_initial_price = ?, final_recurring_price = ?, updated_at = ? WHERE id = ?`,
		p.InitialPrice, p.RecurringPrice, p.FinalInitialPrice, p.FinalRecurringPrice, time.Now().UTC(), itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update line item %s", itemID)
	}
	return checkRowsAffected(res, "line item", itemID)
}

// --- Pricing configuration ---

func (s *SQLiteStore) GetPricingSettings(ctx context.Context, companyID string) (*model.CompanyPricingSettings, error) {
	var ps model.CompanyPricingSettings
	err := s.q.QueryRowContext(ctx,
		`SELECT company_id, base_home_sq_ft, home_sq_ft_interval, max_home_sq_ft, base_yard_acres, yard_acres_interval, max_yard_acres, base_linear_feet, linear_feet_interval, max_linear_feet, updated_at FROM company_pricing_settings WHERE company_id = ?`,
		companyID,
	).Scan(&ps.CompanyID, &ps.BaseHomeSqFt, &ps.HomeSqFtInterval, &ps.MaxHomeSqFt,
		&ps.BaseYardAcres, &ps.YardAcresInterval, &ps.MaxYardAcres,
		&ps.BaseLinearFeet, &ps.LinearFeetInterval, &ps.MaxLinearFeet, &ps.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get pricing settings %s", companyID)
	}
	return &ps, nil
}

func (s *SQLiteStore) UpsertPricingSettings(ctx context.Context, ps model.CompanyPricingSettings) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO company_pricing_settings (company_id, base_home_sq_ft, home_sq_ft_interval, max_home_sq_ft, base_yard_acres, yard_acres_interval, max_yard_acres, base_linear_feet, linear_feet_interval, max_linear_feet, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id) DO UPDATE SET
			base_home_sq_ft = excluded.base_home_sq_ft, home_sq_ft_interval = excluded.home_sq_ft_interval, max_home_sq_ft = excluded.max_home_sq_ft,
			base_yard_acres = excluded.base_yard_acres, yard_acres_interval = excluded.yard_acres_interval, max_yard_acres = excluded.max_yard_acres,
			base_linear_feet = excluded.base_linear_feet, linear_feet_interval = excluded.linear_feet_interval, max_linear_feet = excluded.max_linear_feet,
			updated_at = excluded.updated_at`,
		ps.CompanyID, ps.BaseHomeSqFt, ps.HomeSqFtInterval, ps.MaxHomeSqFt,
		ps.BaseYardAcres, ps.YardAcresInterval, ps.MaxYardAcres,
		ps.BaseLinearFeet, ps.LinearFeetInterval, ps.MaxLinearFeet, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert pricing settings %s", ps.CompanyID)
}

func (s *SQLiteStore) GetServicePlan(ctx context.Context, id string) (*model.ServicePlan, error) {
	var pr planRow
	err := s.q.QueryRowContext(ctx, `SELECT `+planColumns+` FROM service_plans WHERE id = ?`, id).Scan(pr.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get service plan %s", id)
	}
	return pr.plan()
}

func (s *SQLiteStore) ListServicePlans(ctx context.Context, companyID string) ([]model.ServicePlan, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+planColumns+` FROM service_plans WHERE company_id = ? ORDER BY plan_name, id`, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list service plans for %s", companyID)
	}
	defer rows.Close() //nolint:errcheck

	var plans []model.ServicePlan
	for rows.Next() {
		var pr planRow
		if err := rows.Scan(pr.dest()...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan service plan")
		}
		p, err := pr.plan()
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, eris.Wrap(rows.Err(), "sqlite: iterate service plans")
}

// UpsertServicePlans writes plans one by one inside a single transaction.
func (s *SQLiteStore) UpsertServicePlans(ctx context.Context, plans []model.ServicePlan) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *SQLiteStore) error {
		for _, p := range plans {
			home, err := encodePricing(p.HomeSizePricing)
			if err != nil {
				return eris.Wrapf(err, "sqlite: encode plan %s", p.ID)
			}
			yard, err := encodePricing(p.YardSizePricing)
			if err != nil {
				return eris.Wrapf(err, "sqlite: encode plan %s", p.ID)
			}
			linear, err := encodePricing(p.LinearFeetPricing)
			if err != nil {
				return eris.Wrapf(err, "sqlite: encode plan %s", p.ID)
			}
			category := p.PlanCategory
			if category == "" {
				category = model.PlanCategoryStandard
			}
			_, err = tx.q.ExecContext(ctx,
				`INSERT INTO service_plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					company_id = excluded.company_id, plan_name = excluded.plan_name, plan_category = excluded.plan_category,
					initial_price = excluded.initial_price, recurring_price = excluded.recurring_price,
					billing_frequency = excluded.billing_frequency, home_size_pricing = excluded.home_size_pricing,
					yard_size_pricing = excluded.yard_size_pricing, linear_feet_pricing = excluded.linear_feet_pricing,
					is_active = excluded.is_active`,
				p.ID, p.CompanyID, p.PlanName, category, p.InitialPrice, p.RecurringPrice, p.BillingFrequency,
				jsonText(home), jsonText(yard), jsonText(linear), p.IsActive,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert service plan %s", p.ID)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) GetDiscount(ctx context.Context, id string) (*model.CompanyDiscount, error) {
	var (
		did, companyID, name, kind, applies string
		value                               float64
		recKind                             *string
		recValue                            *float64
		active                              bool
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, company_id, discount_name, discount_type, discount_value, applies_to_price, recurring_discount_type, recurring_discount_value, is_active FROM company_discounts WHERE id = ?`,
		id,
	).Scan(&did, &companyID, &name, &kind, &value, &applies, &recKind, &recValue, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get discount %s", id)
	}
	return discountFrom(did, companyID, name, kind, value, applies, recKind, recValue, active), nil
}

func (s *SQLiteStore) UpsertDiscount(ctx context.Context, d model.CompanyDiscount) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO company_discounts (id, company_id, discount_name, discount_type, discount_value, applies_to_price, recurring_discount_type, recurring_discount_value, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			discount_name = excluded.discount_name, discount_type = excluded.discount_type, discount_value = excluded.discount_value,
			applies_to_price = excluded.applies_to_price, recurring_discount_type = excluded.recurring_discount_type,
			recurring_discount_value = excluded.recurring_discount_value, is_active = excluded.is_active`,
		d.ID, d.CompanyID, d.DiscountName, string(d.DiscountType), d.DiscountValue, string(d.AppliesToPrice),
		recurringKind(d), d.RecurringDiscountValue, d.IsActive,
	)
	return eris.Wrapf(err, "sqlite: upsert discount %s", d.ID)
}

// --- Service addresses ---

func (s *SQLiteStore) scanAddress(row scannable, id string) (*model.ServiceAddress, error) {
	var a model.ServiceAddress
	err := row.Scan(&a.ID, &a.CompanyID, &a.CustomerID, &a.StreetAddress, &a.City, &a.State, &a.ZipCode,
		&a.HomeSizeRange, &a.YardSizeRange, &a.LinearFeetRange, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get service address %s", id)
	}
	return &a, nil
}

func (s *SQLiteStore) GetServiceAddress(ctx context.Context, id string) (*model.ServiceAddress, error) {
	return s.scanAddress(s.q.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM service_addresses WHERE id = ?`, id), id)
}

func (s *SQLiteStore) GetPrimaryServiceAddress(ctx context.Context, customerID string) (*model.ServiceAddress, error) {
	return s.scanAddress(s.q.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM service_addresses WHERE customer_id = ? ORDER BY updated_at DESC, id LIMIT 1`, customerID),
		"for customer "+customerID)
}

func (s *SQLiteStore) UpdateServiceAddressSizes(ctx context.Context, id string, sizes model.SizeSelection) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE service_addresses SET home_size_range = ?, yard_size_range = ?, linear_feet_range = ?, updated_at = ? WHERE id = ?`,
		sizes.HomeSizeRange, sizes.YardSizeRange, sizes.LinearFeetRange, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update service address sizes %s", id)
	}
	return checkRowsAffected(res, "service address", id)
}

// --- Email events ---

func (s *SQLiteStore) GetEmailLogByMessageID(ctx context.Context, messageID string) (*model.EmailLog, error) {
	var l model.EmailLog
	var customerID, campaignID, leadID sql.NullString
	var event []byte
	err := s.q.QueryRowContext(ctx,
		`SELECT id, company_id, customer_id, campaign_id, lead_id, message_id, recipient_email, status, bounce_type, bounce_subtype, delivered_at, bounced_at, complained_at, opened_at, clicked_at, last_event, updated_at FROM email_logs WHERE message_id = ?`,
		messageID,
	).Scan(&l.ID, &l.CompanyID, &customerID, &campaignID, &leadID, &l.MessageID, &l.RecipientEmail, &l.Status,
		&l.BounceType, &l.BounceSubtype, &l.DeliveredAt, &l.BouncedAt, &l.ComplainedAt, &l.OpenedAt, &l.ClickedAt,
		&event, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get email log %s", messageID)
	}
	l.CustomerID, l.CampaignID, l.LeadID = customerID.String, campaignID.String, leadID.String
	if len(event) > 0 {
		l.LastEvent = json.RawMessage(event)
	}
	return &l, nil
}

func (s *SQLiteStore) UpdateEmailLog(ctx context.Context, id string, u model.EmailLogUpdate) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE email_logs SET
			status = ?,
			bounce_type = COALESCE(?, bounce_type),
			bounce_subtype = COALESCE(?, bounce_subtype),
			delivered_at = COALESCE(?, delivered_at),
			bounced_at = COALESCE(?, bounced_at),
			complained_at = COALESCE(?, complained_at),
			opened_at = COALESCE(?, opened_at),
			clicked_at = COALESCE(?, clicked_at),
			lead_id = COALESCE(?, lead_id),
			last_event = COALESCE(?, last_event),
			updated_at = ?
		WHERE id = ?`,
		string(u.Status), u.BounceType, u.BounceSubtype, u.DeliveredAt, u.BouncedAt, u.ComplainedAt,
		u.OpenedAt, u.ClickedAt, u.LeadID, jsonText(u.Event), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update email log %s", id)
	}
	return checkRowsAffected(res, "email log", id)
}

func (s *SQLiteStore) UpsertSuppression(ctx context.Context, e model.SuppressionEntry) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO email_suppression_list (company_id, email_address, suppression_reason, source, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id, email_address) DO UPDATE SET
			suppression_reason = excluded.suppression_reason, source = excluded.source, notes = excluded.notes`,
		e.CompanyID, strings.ToLower(strings.TrimSpace(e.Email)), e.Reason, e.Source, e.Notes, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert suppression %s", e.Email)
}

func (s *SQLiteStore) FindCampaignLead(ctx context.Context, companyID, customerID, campaignID string) (*model.Lead, error) {
	var l model.Lead
	var campaign, address sql.NullString
	err := s.q.QueryRowContext(ctx,
		`SELECT id, company_id, customer_id, campaign_id, service_address_id, lead_source, lead_status, comments, created_at FROM leads WHERE company_id = ? AND customer_id = ? AND campaign_id = ? ORDER BY created_at LIMIT 1`,
		companyID, customerID, campaignID,
	).Scan(&l.ID, &l.CompanyID, &l.CustomerID, &campaign, &address, &l.LeadSource, &l.LeadStatus, &l.Comments, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find campaign lead")
	}
	l.CampaignID, l.ServiceAddressID = campaign.String, address.String
	return &l, nil
}

func (s *SQLiteStore) CreateLead(ctx context.Context, l *model.Lead) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO leads (id, company_id, customer_id, campaign_id, service_address_id, lead_source, lead_status, comments, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CompanyID, l.CustomerID, nullable(l.CampaignID), nullable(l.ServiceAddressID),
		l.LeadSource, l.LeadStatus, l.Comments, l.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert lead %s", l.ID)
}

func (s *SQLiteStore) AppendLeadComment(ctx context.Context, leadID, note string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE leads SET comments = CASE WHEN comments = '' THEN ? ELSE comments || ? || ? END WHERE id = ?`,
		note, "\n\n", note, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: append lead comment %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

func (s *SQLiteStore) CreateActivity(ctx context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()
	var meta []byte
	if a.Metadata != nil {
		var err error
		if meta, err = json.Marshal(a.Metadata); err != nil {
			return eris.Wrap(err, "sqlite: marshal activity metadata")
		}
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO activities (id, company_id, entity_type, entity_id, activity_type, notes, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CompanyID, a.EntityType, a.EntityID, a.ActivityType, a.Notes, jsonText(meta), a.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert activity %s", a.ID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// jsonText binds JSON as TEXT, or NULL when empty.
func jsonText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
