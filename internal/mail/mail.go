// Package mail hands outbound messages to the email service. Delivery itself
// happens elsewhere.
package mail

import (
	"context"
	"log/slog"

	"github.com/govlink/govlink/internal/mykafka"
)

type Template string

const (
	TemplatePasswordReset     Template = "password_reset"
	TemplateEmailVerification Template = "email_verification"
)

type Message struct {
	To        string            `json:"to"`
	Template  Template          `json:"template"`
	Partition string            `json:"partition"`
	Link      string            `json:"link"`
	Data      map[string]string `json:"data,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// KafkaSender publishes the message for the notification service.
type KafkaSender struct {
	Pub   mykafka.Publisher
	Topic string
}

func (k *KafkaSender) Send(ctx context.Context, m Message) error {
	return k.Pub.PublishEvent(ctx, k.Topic, m.To, m)
}

// LogSender writes the link to the log. Development only.
type LogSender struct {
	Log *slog.Logger
}

func (s *LogSender) Send(_ context.Context, m Message) error {
	s.Log.Info("mail_outbox", "to", m.To, "template", m.Template, "partition", m.Partition, "link", m.Link)
	return nil
}
