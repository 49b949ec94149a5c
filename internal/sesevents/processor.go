package sesevents

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/quote"
)

var (
	ErrEmailLogNotFound = eris.New("sesevents: email log not found")
	ErrMissingEventData = eris.New("sesevents: event data missing")
)

// ActivityLeadFromClick is recorded when a tracked link click creates a lead.
const ActivityLeadFromClick = "lead_created_from_email_click"

// Link tags understood on Click events.
const (
	tagGenerateLead  = "generateLead"
	tagCustomerID    = "customerId"
	tagCampaignID    = "campaignId"
	tagServicePlanID = "servicePlanId"
)

// Recalculator prices a newly created quote.
type Recalculator interface {
	Recalculate(ctx context.Context, quoteID string, upd quote.SizeUpdate) error
}

// Processor applies SES events to email logs, the suppression list and
// campaign leads.
type Processor struct {
	store  Store
	recalc Recalculator
	log    *zap.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRecalculator prices quotes created from campaign clicks. Without one,
// such quotes keep the plan's base prices.
func WithRecalculator(r Recalculator) ProcessorOption {
	return func(p *Processor) { p.recalc = r }
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) ProcessorOption {
	return func(p *Processor) { p.log = l }
}

// NewProcessor creates a Processor over s.
func NewProcessor(s Store, opts ...ProcessorOption) *Processor {
	p := &Processor{store: s, log: zap.L()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessMessage decodes the Message field of an SNS notification and
// processes the SES event it carries.
func (p *Processor) ProcessMessage(ctx context.Context, message string) error {
	var ev Event
	if err := json.Unmarshal([]byte(message), &ev); err != nil {
		return eris.Wrap(err, "sesevents: decode event")
	}
	return p.Process(ctx, &ev, json.RawMessage(message))
}

// Process routes one event by type. raw is stored on the email log as the
// last event payload.
func (p *Processor) Process(ctx context.Context, ev *Event, raw json.RawMessage) error {
	log := p.log.With(zap.String("event_type", ev.Type()), zap.String("message_id", ev.Mail.MessageID))

	switch ev.Type() {
	case EventBounce:
		return p.bounce(ctx, ev, raw, log)
	case EventComplaint:
		return p.complaint(ctx, ev, raw, log)
	case EventDelivery:
		return p.delivery(ctx, ev, raw)
	case EventOpen:
		return p.open(ctx, ev, log)
	case EventClick:
		return p.click(ctx, ev, log)
	case EventSend:
		log.Debug("sesevents: send event")
	case EventReject:
		log.Warn("sesevents: email rejected by ses")
	case EventRenderingFailure:
		log.Error("sesevents: email rendering failure")
	case EventDeliveryDelay:
		log.Warn("sesevents: email delivery delayed")
	default:
		log.Warn("sesevents: unknown event type")
	}
	return nil
}

func (p *Processor) emailLog(ctx context.Context, messageID string) (*model.EmailLog, error) {
	el, err := p.store.GetEmailLogByMessageID(ctx, messageID)
	if err != nil {
		return nil, eris.Wrapf(err, "sesevents: get email log %s", messageID)
	}
	if el == nil {
		return nil, eris.Wrapf(ErrEmailLogNotFound, "message %s", messageID)
	}
	return el, nil
}

func (p *Processor) bounce(ctx context.Context, ev *Event, raw json.RawMessage, log *zap.Logger) error {
	b := ev.Bounce
	if b == nil {
		return eris.Wrap(ErrMissingEventData, "bounce")
	}
	el, err := p.emailLog(ctx, ev.Mail.MessageID)
	if err != nil {
		return err
	}

	for _, r := range b.BouncedRecipients {
		switch b.BounceType {
		case "Permanent":
			err := p.store.UpsertSuppression(ctx, model.SuppressionEntry{
				CompanyID: el.CompanyID,
				Email:     r.EmailAddress,
				Reason:    model.SuppressionReasonBounce,
				Source:    model.SuppressionSourceHard,
				Notes:     "Permanent bounce: " + b.BounceSubType,
			})
			if err != nil {
				return eris.Wrap(err, "sesevents: suppress bounced recipient")
			}
		case "Transient":
			log.Info("sesevents: transient bounce",
				zap.String("email", r.EmailAddress), zap.String("subtype", b.BounceSubType))
		}
	}

	return p.update(ctx, el.ID, model.EmailLogUpdate{
		Status:        model.EmailStatusBounced,
		BounceType:    &b.BounceType,
		BounceSubtype: &b.BounceSubType,
		BouncedAt:     timeOrNow(b.Timestamp),
		Event:         raw,
	})
}

func (p *Processor) complaint(ctx context.Context, ev *Event, raw json.RawMessage, log *zap.Logger) error {
	c := ev.Complaint
	if c == nil {
		return eris.Wrap(ErrMissingEventData, "complaint")
	}
	el, err := p.emailLog(ctx, ev.Mail.MessageID)
	if err != nil {
		return err
	}

	feedback := c.ComplaintFeedbackType
	if feedback == "" {
		feedback = "not specified"
	}
	for _, r := range c.ComplainedRecipients {
		err := p.store.UpsertSuppression(ctx, model.SuppressionEntry{
			CompanyID: el.CompanyID,
			Email:     r.EmailAddress,
			Reason:    model.SuppressionReasonComplaint,
			Source:    model.SuppressionSourceComplaint,
			Notes:     "Complaint type: " + feedback,
		})
		if err != nil {
			return eris.Wrap(err, "sesevents: suppress complaining recipient")
		}
	}
	log.Info("sesevents: complaint recorded", zap.Int("recipients", len(c.ComplainedRecipients)))

	return p.update(ctx, el.ID, model.EmailLogUpdate{
		Status:       model.EmailStatusComplained,
		ComplainedAt: timeOrNow(c.Timestamp),
		Event:        raw,
	})
}

func (p *Processor) delivery(ctx context.Context, ev *Event, raw json.RawMessage) error {
	d := ev.Delivery
	if d == nil {
		return eris.Wrap(ErrMissingEventData, "delivery")
	}
	el, err := p.emailLog(ctx, ev.Mail.MessageID)
	if err != nil {
		return err
	}
	return p.update(ctx, el.ID, model.EmailLogUpdate{
		Status:      model.EmailStatusDelivered,
		DeliveredAt: timeOrNow(d.Timestamp),
		Event:       raw,
	})
}

// open records the first open only.
func (p *Processor) open(ctx context.Context, ev *Event, log *zap.Logger) error {
	o := ev.Open
	if o == nil {
		return eris.Wrap(ErrMissingEventData, "open")
	}
	el, err := p.store.GetEmailLogByMessageID(ctx, ev.Mail.MessageID)
	if err != nil {
		return eris.Wrapf(err, "sesevents: get email log %s", ev.Mail.MessageID)
	}
	if el == nil {
		log.Debug("sesevents: open for unknown message")
		return nil
	}
	if el.OpenedAt != nil {
		return nil
	}
	return p.update(ctx, el.ID, model.EmailLogUpdate{
		Status:   model.EmailStatusOpened,
		OpenedAt: timeOrNow(o.Timestamp),
	})
}

// click records the first click and, for links tagged generateLead=true,
// creates a campaign lead and optionally a priced quote.
func (p *Processor) click(ctx context.Context, ev *Event, log *zap.Logger) error {
	c := ev.Click
	if c == nil {
		return eris.Wrap(ErrMissingEventData, "click")
	}
	el, err := p.emailLog(ctx, ev.Mail.MessageID)
	if err != nil {
		return err
	}

	var (
		upd     model.EmailLogUpdate
		changed bool
	)
	if el.ClickedAt == nil {
		upd.ClickedAt = timeOrNow(c.Timestamp)
		changed = true
	}

	if strings.EqualFold(c.tag(tagGenerateLead), "true") {
		leadID, err := p.leadFromClick(ctx, el, c, log)
		if err != nil {
			return err
		}
		if leadID != "" {
			upd.LeadID = &leadID
			changed = true
		}
	}

	if !changed {
		return nil
	}
	upd.Status = model.EmailStatusClicked
	return p.update(ctx, el.ID, upd)
}

// leadFromClick returns the id of a newly created lead, or "" when none was
// created.
func (p *Processor) leadFromClick(ctx context.Context, el *model.EmailLog, c *Click, log *zap.Logger) (string, error) {
	customerID := firstNonEmpty(c.tag(tagCustomerID), el.CustomerID)
	campaignID := firstNonEmpty(c.tag(tagCampaignID), el.CampaignID)
	companyID := el.CompanyID
	if customerID == "" || companyID == "" {
		log.Warn("sesevents: click lead missing customer or company")
		return "", nil
	}

	existing, err := p.store.FindCampaignLead(ctx, companyID, customerID, campaignID)
	if err != nil {
		return "", eris.Wrap(err, "sesevents: find campaign lead")
	}
	if existing != nil {
		log.Debug("sesevents: lead already exists", zap.String("lead_id", existing.ID))
		return "", nil
	}

	addr, err := p.store.GetPrimaryServiceAddress(ctx, customerID)
	if err != nil {
		return "", eris.Wrapf(err, "sesevents: get service address for customer %s", customerID)
	}

	lead := &model.Lead{
		CompanyID:  companyID,
		CustomerID: customerID,
		CampaignID: campaignID,
		LeadSource: model.LeadSourceCampaign,
		LeadStatus: model.LeadStatusQuoted,
		Comments:   "Lead created from email click engagement. Link: " + c.Link,
	}
	if addr != nil {
		lead.ServiceAddressID = addr.ID
	}
	if err := p.store.CreateLead(ctx, lead); err != nil {
		return "", eris.Wrap(err, "sesevents: create lead")
	}

	meta := map[string]any{
		"campaign_id":  campaignID,
		"customer_id":  customerID,
		"email_log_id": el.ID,
		"clicked_link": c.Link,
		"link_tags":    c.LinkTags,
		"ip_address":   c.IPAddress,
		"user_agent":   c.UserAgent,
	}

	if planID := c.tag(tagServicePlanID); planID != "" {
		quoteID, err := p.quoteForLead(ctx, lead, addr, planID, log)
		if err != nil {
			return "", err
		}
		if quoteID != "" {
			meta["quote_id"] = quoteID
		}
	}

	err = p.store.CreateActivity(ctx, &model.Activity{
		CompanyID:    companyID,
		EntityType:   "lead",
		EntityID:     lead.ID,
		ActivityType: ActivityLeadFromClick,
		Metadata:     meta,
	})
	if err != nil {
		return "", eris.Wrap(err, "sesevents: record activity")
	}

	log.Info("sesevents: lead created from click",
		zap.String("lead_id", lead.ID), zap.String("customer_id", customerID))
	return lead.ID, nil
}

// quoteForLead creates a draft quote with one line item for planID, sized
// from the customer's service address, and prices it.
func (p *Processor) quoteForLead(ctx context.Context, lead *model.Lead, addr *model.ServiceAddress, planID string, log *zap.Logger) (string, error) {
	plan, err := p.store.GetServicePlan(ctx, planID)
	if err != nil {
		return "", eris.Wrapf(err, "sesevents: get service plan %s", planID)
	}
	if plan == nil || plan.CompanyID != lead.CompanyID {
		log.Warn("sesevents: click service plan not found", zap.String("service_plan_id", planID))
		return "", nil
	}

	recurring := plan.RecurringPrice
	if plan.IsOneTime() {
		recurring = 0
	}
	q := &model.Quote{
		CompanyID:  lead.CompanyID,
		CustomerID: lead.CustomerID,
		LeadID:     lead.ID,
		LineItems: []model.QuoteLineItem{{
			ServicePlanID:       plan.ID,
			PlanName:            plan.PlanName,
			InitialPrice:        plan.InitialPrice,
			RecurringPrice:      recurring,
			FinalInitialPrice:   plan.InitialPrice,
			FinalRecurringPrice: recurring,
		}},
		TotalInitialPrice:   plan.InitialPrice,
		TotalRecurringPrice: recurring,
	}
	if addr != nil {
		q.ServiceAddressID = addr.ID
		q.HomeSizeRange = addr.HomeSizeRange
		q.YardSizeRange = addr.YardSizeRange
		q.LinearFeetRange = addr.LinearFeetRange
	}
	if err := p.store.CreateQuote(ctx, q); err != nil {
		return "", eris.Wrap(err, "sesevents: create quote")
	}

	if p.recalc != nil {
		if err := p.recalc.Recalculate(ctx, q.ID, quote.SizeUpdate{}); err != nil {
			return "", eris.Wrapf(err, "sesevents: price quote %s", q.ID)
		}
	}
	return q.ID, nil
}

func (p *Processor) update(ctx context.Context, id string, u model.EmailLogUpdate) error {
	if err := p.store.UpdateEmailLog(ctx, id, u); err != nil {
		return eris.Wrapf(err, "sesevents: update email log %s", id)
	}
	return nil
}

func timeOrNow(t time.Time) *time.Time {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return &t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
