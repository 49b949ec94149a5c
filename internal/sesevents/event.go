package sesevents

import "time"

// Event types published by SES configuration sets.
const (
	EventBounce           = "Bounce"
	EventComplaint        = "Complaint"
	EventDelivery         = "Delivery"
	EventOpen             = "Open"
	EventClick            = "Click"
	EventSend             = "Send"
	EventReject           = "Reject"
	EventRenderingFailure = "Rendering Failure"
	EventDeliveryDelay    = "DeliveryDelay"
)

// Event is an SES event record carried in an SNS notification's Message.
type Event struct {
	EventType string `json:"eventType"`
	// NotificationType is set instead of EventType by identity-level
	// feedback notifications.
	NotificationType string     `json:"notificationType,omitempty"`
	Mail             Mail       `json:"mail"`
	Bounce           *Bounce    `json:"bounce,omitempty"`
	Complaint        *Complaint `json:"complaint,omitempty"`
	Delivery         *Delivery  `json:"delivery,omitempty"`
	Open             *Open      `json:"open,omitempty"`
	Click            *Click     `json:"click,omitempty"`
}

// Type returns the event type from whichever field is set.
func (e *Event) Type() string {
	if e.EventType != "" {
		return e.EventType
	}
	return e.NotificationType
}

type Mail struct {
	MessageID   string    `json:"messageId"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Destination []string  `json:"destination"`
}

type Recipient struct {
	EmailAddress   string `json:"emailAddress"`
	Status         string `json:"status,omitempty"`
	DiagnosticCode string `json:"diagnosticCode,omitempty"`
}

type Bounce struct {
	BounceType        string      `json:"bounceType"`
	BounceSubType     string      `json:"bounceSubType"`
	BouncedRecipients []Recipient `json:"bouncedRecipients"`
	Timestamp         time.Time   `json:"timestamp"`
}

type Complaint struct {
	ComplainedRecipients  []Recipient `json:"complainedRecipients"`
	ComplaintFeedbackType string      `json:"complaintFeedbackType,omitempty"`
	Timestamp             time.Time   `json:"timestamp"`
}

type Delivery struct {
	Timestamp  time.Time `json:"timestamp"`
	Recipients []string  `json:"recipients"`
}

type Open struct {
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

type Click struct {
	Timestamp time.Time           `json:"timestamp"`
	Link      string              `json:"link"`
	LinkTags  map[string][]string `json:"linkTags,omitempty"`
	IPAddress string              `json:"ipAddress,omitempty"`
	UserAgent string              `json:"userAgent,omitempty"`
}

// tag returns the first value of a link tag.
func (c *Click) tag(name string) string {
	if v := c.LinkTags[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}
