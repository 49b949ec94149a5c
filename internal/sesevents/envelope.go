// Package sesevents handles email events that SES publishes through SNS:
// envelope parsing, signature verification, subscription confirmation and
// routing of bounces, complaints, deliveries, opens and clicks.
package sesevents

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// SNS message types.
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// ErrInvalidEnvelope is returned for bodies that are not an SNS message.
var ErrInvalidEnvelope = eris.New("sesevents: invalid sns envelope")

// Envelope is the SNS HTTP delivery wrapper.
type Envelope struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	Token            string `json:"Token,omitempty"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion"`
	Signature        string `json:"Signature"`
	SigningCertURL   string `json:"SigningCertURL"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
	UnsubscribeURL   string `json:"UnsubscribeURL,omitempty"`
}

// ParseEnvelope decodes an SNS message body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrapf(ErrInvalidEnvelope, "decode: %v", err)
	}
	if env.Type == "" {
		return nil, eris.Wrap(ErrInvalidEnvelope, "missing Type")
	}
	return &env, nil
}

// StringToSign builds the canonical text SNS signs for this message type.
func (e *Envelope) StringToSign() (string, error) {
	var fields [][2]string
	switch e.Type {
	case TypeNotification:
		fields = append(fields, [2]string{"Message", e.Message}, [2]string{"MessageId", e.MessageID})
		if e.Subject != "" {
			fields = append(fields, [2]string{"Subject", e.Subject})
		}
		fields = append(fields,
			[2]string{"Timestamp", e.Timestamp},
			[2]string{"TopicArn", e.TopicArn},
			[2]string{"Type", e.Type},
		)
	case TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
		fields = [][2]string{
			{"Message", e.Message},
			{"MessageId", e.MessageID},
			{"SubscribeURL", e.SubscribeURL},
			{"Timestamp", e.Timestamp},
			{"Token", e.Token},
			{"TopicArn", e.TopicArn},
			{"Type", e.Type},
		}
	default:
		return "", eris.Errorf("sesevents: unknown message type %q", e.Type)
	}

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f[0])
		b.WriteByte('\n')
		b.WriteString(f[1])
		b.WriteByte('\n')
	}
	return b.String(), nil
}
