// Package mail renders notification emails and delivers them through a
// per-site SMTP server, a fixed SendGrid account or the log.
package mail

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
)

// ErrNoRecipient is returned when a message has no destination address.
var ErrNoRecipient = errors.New("message has no recipient")

// Address is a display name plus an email address.
type Address struct {
	Name  string
	Email string
}

// String formats the address for headers.
func (a Address) String() string {
	return (&netmail.Address{Name: a.Name, Address: a.Email}).String()
}

// Message is a rendered email.
type Message struct {
	To      Address
	Subject string
	Text    string
	HTML    string
}

// SMTPCredentials is the SMTP identity of a site. It is resolved at send
// time and handed to the sender explicitly.
type SMTPCredentials struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool

	// UseSSL connects with implicit TLS. Port 465 implies it.
	UseSSL bool
	From   Address
}

// Sender delivers through one fixed backend.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SiteSender delivers with credentials chosen by the caller.
type SiteSender interface {
	SendVia(ctx context.Context, creds SMTPCredentials, msg Message) error
}

func validate(msg Message) error {
	if msg.To.Email == "" {
		return ErrNoRecipient
	}
	if msg.Text == "" && msg.HTML == "" {
		return fmt.Errorf("message to %s has no content", msg.To.Email)
	}
	return nil
}
