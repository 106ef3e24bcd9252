package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender delivers messages through the SMTP server given on each call.
type SMTPSender struct {
	timeout time.Duration
}

// NewSMTPSender builds an SMTPSender.
func NewSMTPSender(timeout time.Duration) *SMTPSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SMTPSender{timeout: timeout}
}

// SendVia opens a connection with creds and sends msg.
func (s *SMTPSender) SendVia(ctx context.Context, creds SMTPCredentials, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	m, err := buildMsg(creds.From, msg)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(creds.Host, clientOptions(creds, s.timeout)...)
	if err != nil {
		return fmt.Errorf("smtp client %s: %w", creds.Host, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s via %s: %w", msg.To.Email, creds.Host, err)
	}
	return nil
}

func clientOptions(creds SMTPCredentials, timeout time.Duration) []gomail.Option {
	opts := []gomail.Option{gomail.WithTimeout(timeout)}
	if creds.Port > 0 {
		opts = append(opts, gomail.WithPort(creds.Port))
	}
	switch {
	case creds.implicitTLS():
		opts = append(opts, gomail.WithSSL())
	case creds.UseTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if creds.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(creds.Username),
			gomail.WithPassword(creds.Password),
		)
	}
	return opts
}

// smtpsPort is the registered port for SMTP over implicit TLS.
const smtpsPort = 465

func (c SMTPCredentials) implicitTLS() bool {
	return c.UseSSL || c.Port == smtpsPort
}

func buildMsg(from Address, msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.FromFormat(from.Name, from.Email); err != nil {
		return nil, fmt.Errorf("from address %q: %w", from.Email, err)
	}
	if err := m.AddToFormat(msg.To.Name, msg.To.Email); err != nil {
		return nil, fmt.Errorf("to address %q: %w", msg.To.Email, err)
	}
	m.Subject(msg.Subject)
	if msg.Text != "" {
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
		if msg.HTML != "" {
			m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
		}
	} else {
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}
