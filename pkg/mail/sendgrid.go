package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGridSender delivers through a single SendGrid account.
type SendGridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

// NewSendGridSender builds a sender for the given API key and identity.
func NewSendGridSender(apiKey string, from Address, subjectPrefix string) *SendGridSender {
	return &SendGridSender{
		key:        apiKey,
		from:       sgmail.NewEmail(from.Name, from.Email),
		subjPrefix: subjectPrefix,
	}
}

// Send posts msg to the SendGrid v3 API.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid send to %s: %w", msg.To.Email, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send to %s: status %d: %s", msg.To.Email, res.StatusCode, res.Body)
	}
	return nil
}

func (s *SendGridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)

	var contents []*sgmail.Content
	if msg.Text != "" {
		contents = append(contents, sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		contents = append(contents, sgmail.NewContent("text/html", msg.HTML))
	}
	m.AddContent(contents...)
	return m
}
