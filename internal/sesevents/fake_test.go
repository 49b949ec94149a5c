package sesevents

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/quote"
)

// fakeStore implements Store in memory.
type fakeStore struct {
	mu           sync.Mutex
	logs         map[string]*model.EmailLog // by message id
	updates      map[string][]model.EmailLogUpdate
	suppressed   []model.SuppressionEntry
	leads        []*model.Lead
	activities   []*model.Activity
	addresses    map[string]*model.ServiceAddress // by customer id
	plans        map[string]*model.ServicePlan
	quotes       []*model.Quote
	failSuppress bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		logs:      map[string]*model.EmailLog{},
		updates:   map[string][]model.EmailLogUpdate{},
		addresses: map[string]*model.ServiceAddress{},
		plans:     map[string]*model.ServicePlan{},
	}
}

func (f *fakeStore) GetEmailLogByMessageID(_ context.Context, messageID string) (*model.EmailLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, ok := f.logs[messageID]
	if !ok {
		return nil, nil
	}
	cp := *el
	return &cp, nil
}

func (f *fakeStore) UpdateEmailLog(_ context.Context, id string, u model.EmailLogUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = append(f.updates[id], u)
	for _, el := range f.logs {
		if el.ID != id {
			continue
		}
		el.Status = u.Status
		if u.OpenedAt != nil {
			el.OpenedAt = u.OpenedAt
		}
		if u.ClickedAt != nil {
			el.ClickedAt = u.ClickedAt
		}
		if u.LeadID != nil {
			el.LeadID = *u.LeadID
		}
		return nil
	}
	return eris.Errorf("email log %s not found", id)
}

func (f *fakeStore) UpsertSuppression(_ context.Context, e model.SuppressionEntry) error {
	if f.failSuppress {
		return eris.New("suppression write failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e.Email = strings.ToLower(e.Email)
	f.suppressed = append(f.suppressed, e)
	return nil
}

func (f *fakeStore) FindCampaignLead(_ context.Context, companyID, customerID, campaignID string) (*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.leads {
		if l.CompanyID == companyID && l.CustomerID == customerID && l.CampaignID == campaignID {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateLead(_ context.Context, l *model.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.ID = uuid.New().String()
	f.leads = append(f.leads, l)
	return nil
}

func (f *fakeStore) CreateActivity(_ context.Context, a *model.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = uuid.New().String()
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeStore) GetPrimaryServiceAddress(_ context.Context, customerID string) (*model.ServiceAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addresses[customerID], nil
}

func (f *fakeStore) GetServicePlan(_ context.Context, id string) (*model.ServicePlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plans[id], nil
}

func (f *fakeStore) CreateQuote(_ context.Context, q *model.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q.ID = uuid.New().String()
	f.quotes = append(f.quotes, q)
	return nil
}

// fakeRecalc records the quotes it was asked to price.
type fakeRecalc struct {
	quoteIDs []string
	err      error
}

func (r *fakeRecalc) Recalculate(_ context.Context, quoteID string, _ quote.SizeUpdate) error {
	r.quoteIDs = append(r.quoteIDs, quoteID)
	return r.err
}
