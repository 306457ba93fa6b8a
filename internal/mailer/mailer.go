// Package mailer renders the transactional e-mails from a YAML template
// catalog and hands them to a Sender.
package mailer

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/Mouaddiguoug/feetflight/internal/logging"
)

//go:embed templates.yaml
var defaultCatalog []byte

// Template names.
const (
	Welcome             = "welcome"
	Confirmed           = "confirmed"
	Receipt             = "receipt"
	SubscriptionStarted = "subscription_started"
	SellerVerified      = "seller_verified"
)

// Message is a rendered e-mail.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type entry struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// Mailer renders and sends catalog templates.
type Mailer struct {
	from      string
	sender    Sender
	templates map[string]compiled
}

// New builds a mailer over the embedded catalog.
func New(from string, sender Sender) (*Mailer, error) {
	return NewWithCatalog(from, sender, defaultCatalog)
}

// NewWithCatalog builds a mailer from a YAML document mapping template names
// to {subject, body}.
func NewWithCatalog(from string, sender Sender, catalog []byte) (*Mailer, error) {
	var entries map[string]entry
	if err := yaml.Unmarshal(catalog, &entries); err != nil {
		return nil, fmt.Errorf("parse mail catalog: %w", err)
	}

	m := &Mailer{from: from, sender: sender, templates: make(map[string]compiled, len(entries))}
	for name, e := range entries {
		subject, err := template.New(name + ".subject").Option("missingkey=error").Parse(e.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s subject: %w", name, err)
		}
		body, err := template.New(name + ".body").Option("missingkey=error").Parse(e.Body)
		if err != nil {
			return nil, fmt.Errorf("template %s body: %w", name, err)
		}
		m.templates[name] = compiled{subject: subject, body: body}
	}
	return m, nil
}

// Render fills template name with data.
func (m *Mailer) Render(name, to string, data map[string]interface{}) (Message, error) {
	t, ok := m.templates[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail template %q", name)
	}
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", name, err)
	}
	return Message{
		From:    m.from,
		To:      to,
		Subject: strings.TrimSpace(subject.String()),
		Body:    body.String(),
	}, nil
}

// Send renders and delivers template name to the given address.
func (m *Mailer) Send(ctx context.Context, name, to string, data map[string]interface{}) error {
	msg, err := m.Render(name, to, data)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", name, to, err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("mail sent")
	s.logger.WithContext(ctx).Debug(msg.Body)
	return nil
}
