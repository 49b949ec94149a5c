package model

import (
	"encoding/json"
	"time"
)

// EmailStatus is the delivery state of a sent email.
type EmailStatus string

const (
	EmailStatusSent       EmailStatus = "sent"
	EmailStatusDelivered  EmailStatus = "delivered"
	EmailStatusBounced    EmailStatus = "bounced"
	EmailStatusComplained EmailStatus = "complained"
	EmailStatusOpened     EmailStatus = "opened"
	EmailStatusClicked    EmailStatus = "clicked"
)

// EmailLog tracks one sent email by its provider message id.
type EmailLog struct {
	ID             string          `json:"id"`
	CompanyID      string          `json:"company_id"`
	CustomerID     string          `json:"customer_id,omitempty"`
	CampaignID     string          `json:"campaign_id,omitempty"`
	LeadID         string          `json:"lead_id,omitempty"`
	MessageID      string          `json:"message_id"`
	RecipientEmail string          `json:"recipient_email"`
	Status         EmailStatus     `json:"status"`
	BounceType     string          `json:"bounce_type,omitempty"`
	BounceSubtype  string          `json:"bounce_subtype,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	BouncedAt      *time.Time      `json:"bounced_at,omitempty"`
	ComplainedAt   *time.Time      `json:"complained_at,omitempty"`
	OpenedAt       *time.Time      `json:"opened_at,omitempty"`
	ClickedAt      *time.Time      `json:"clicked_at,omitempty"`
	LastEvent      json.RawMessage `json:"last_event,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EmailLogUpdate is a partial update applied to an email log. Nil fields
// are left unchanged.
type EmailLogUpdate struct {
	Status        EmailStatus
	BounceType    *string
	BounceSubtype *string
	DeliveredAt   *time.Time
	BouncedAt     *time.Time
	ComplainedAt  *time.Time
	OpenedAt      *time.Time
	ClickedAt     *time.Time
	LeadID        *string
	Event         json.RawMessage
}

// Suppression reasons and sources.
const (
	SuppressionReasonBounce    = "bounce"
	SuppressionReasonComplaint = "complaint"
	SuppressionSourceHard      = "hard_bounce"
	SuppressionSourceComplaint = "complaint"
)

// SuppressionEntry blocks future sends to an address for one company.
type SuppressionEntry struct {
	CompanyID string    `json:"company_id"`
	Email     string    `json:"email_address"`
	Reason    string    `json:"suppression_reason"`
	Source    string    `json:"source"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Lead statuses and sources.
const (
	LeadStatusQuoted   = "quoted"
	LeadSourceCampaign = "campaign"
)

// Lead is a sales opportunity.
type Lead struct {
	ID               string    `json:"id"`
	CompanyID        string    `json:"company_id"`
	CustomerID       string    `json:"customer_id"`
	CampaignID       string    `json:"campaign_id,omitempty"`
	ServiceAddressID string    `json:"service_address_id,omitempty"`
	LeadSource       string    `json:"lead_source"`
	LeadStatus       string    `json:"lead_status"`
	Comments         string    `json:"comments,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Activity is an audit trail row attached to an entity.
type Activity struct {
	ID           string         `json:"id"`
	CompanyID    string         `json:"company_id"`
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	ActivityType string         `json:"activity_type"`
	Notes        string         `json:"notes,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
