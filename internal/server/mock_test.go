package server

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/quote"
	"github.com/pestline/pestline/internal/sesevents"
	"github.com/pestline/pestline/internal/voicemail"
)

// --- Store fake ---

type fakeStore struct {
	quotes    map[string]*model.Quote
	items     map[string][]model.QuoteLineItem
	settings  map[string]*model.CompanyPricingSettings
	plans     map[string]*model.ServicePlan
	addresses map[string]*model.ServiceAddress
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		quotes:    map[string]*model.Quote{},
		items:     map[string][]model.QuoteLineItem{},
		settings:  map[string]*model.CompanyPricingSettings{},
		plans:     map[string]*model.ServicePlan{},
		addresses: map[string]*model.ServiceAddress{},
	}
}

func (f *fakeStore) GetQuote(_ context.Context, id string) (*model.Quote, error) {
	q, ok := f.quotes[id]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (f *fakeStore) ListLineItems(_ context.Context, quoteID string) ([]model.QuoteLineItem, error) {
	return f.items[quoteID], nil
}

func (f *fakeStore) GetPricingSettings(_ context.Context, companyID string) (*model.CompanyPricingSettings, error) {
	return f.settings[companyID], nil
}

func (f *fakeStore) GetServicePlan(_ context.Context, id string) (*model.ServicePlan, error) {
	return f.plans[id], nil
}

func (f *fakeStore) GetServiceAddress(_ context.Context, id string) (*model.ServiceAddress, error) {
	return f.addresses[id], nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

// --- Recalculator mock ---

type mockRecalc struct {
	mock.Mock
}

func (m *mockRecalc) Recalculate(ctx context.Context, quoteID string, upd quote.SizeUpdate) error {
	return m.Called(ctx, quoteID, upd).Error(0)
}

func (m *mockRecalc) ForServiceAddress(ctx context.Context, addressID string, upd quote.SizeUpdate) ([]string, error) {
	args := m.Called(ctx, addressID, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// --- Voicemail mock ---

type mockVoicemail struct {
	mock.Mock
}

func (m *mockVoicemail) Send(ctx context.Context, req voicemail.Request) (*voicemail.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*voicemail.Response), args.Error(1)
}

func (m *mockVoicemail) Status() voicemail.Status {
	return m.Called().Get(0).(voicemail.Status)
}

// --- SNS fakes ---

type fakeVerifier struct{ err error }

func (v fakeVerifier) Verify(context.Context, *sesevents.Envelope) error { return v.err }

type fakeConfirmer struct {
	confirmed []string
	err       error
}

func (c *fakeConfirmer) Confirm(_ context.Context, env *sesevents.Envelope) error {
	if c.err != nil {
		return c.err
	}
	c.confirmed = append(c.confirmed, env.SubscribeURL)
	return nil
}

type fakeEvents struct {
	messages []string
	err      error
}

func (e *fakeEvents) ProcessMessage(_ context.Context, message string) error {
	e.messages = append(e.messages, message)
	return e.err
}

var errBoom = eris.New("boom")
