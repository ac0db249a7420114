// Package notifier sends the sighting alert when a subject matches the
// wanted feed. Delivery is best-effort: the pipeline treats any failure
// here as advisory.
package notifier

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"crimesight-go/internal/logger"
)

type Notifier interface {
	Alert(ctx context.Context, subjectName, location string) error
}

// Twilio sends the alert as an SMS to the configured police contact.
type Twilio struct {
	client *twilio.RestClient
	from   string
	to     string
	log    *logrus.Entry
}

func NewTwilio(accountSID, authToken, from, to string) *Twilio {
	return &Twilio{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from: from,
		to:   to,
		log:  logger.New().WithComponent("notifier"),
	}
}

func (t *Twilio) Alert(_ context.Context, subjectName, location string) error {
	params := &openapi.CreateMessageParams{}
	params.SetBody(fmt.Sprintf("CrimeSight Alert: %s spotted at %s.", subjectName, location))
	params.SetFrom(t.from)
	params.SetTo(t.to)

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("send alert sms: %w", err)
	}
	t.log.WithField("subject_name", subjectName).Info("alert sms sent")
	return nil
}

// Noop is used when no SMS credentials are configured.
type Noop struct{}

func (Noop) Alert(context.Context, string, string) error { return nil }
