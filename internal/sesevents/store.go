package sesevents

import (
	"context"

	"github.com/pestline/pestline/internal/model"
)

// Store is the persistence the event processor needs. Lookups return
// (nil, nil) when the row does not exist.
type Store interface {
	GetEmailLogByMessageID(ctx context.Context, messageID string) (*model.EmailLog, error)
	UpdateEmailLog(ctx context.Context, id string, u model.EmailLogUpdate) error
	UpsertSuppression(ctx context.Context, e model.SuppressionEntry) error

	FindCampaignLead(ctx context.Context, companyID, customerID, campaignID string) (*model.Lead, error)
	CreateLead(ctx context.Context, l *model.Lead) error
	CreateActivity(ctx context.Context, a *model.Activity) error

	GetPrimaryServiceAddress(ctx context.Context, customerID string) (*model.ServiceAddress, error)
	GetServicePlan(ctx context.Context, id string) (*model.ServicePlan, error)
	// CreateQuote inserts a quote with its line items, assigning ids.
	CreateQuote(ctx context.Context, q *model.Quote) error
}
