// Package notify delivers run reports over the configured channel.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/opscart/index-maint/pkg/config"
	"github.com/opscart/index-maint/pkg/logging"
	"github.com/opscart/index-maint/pkg/metrics"
	"github.com/opscart/index-maint/pkg/models"
	"github.com/opscart/index-maint/pkg/reporter"
)

// Message is one rendered report
type Message struct {
	Subject  string
	Body     string
	HTMLBody string
	Summary  *models.RunSummary
}

// Channel sends a report somewhere. Errors are reported, never retried.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// BuildMessage renders the subject, text body and HTML body of a report
func BuildMessage(prefix, scope string, report *reporter.Report) (Message, error) {
	var html bytes.Buffer
	if err := reporter.GenerateHTML(report, &html); err != nil {
		return Message{}, err
	}

	return Message{
		Subject:  reporter.Subject(prefix, report.Summary.Headline, scope),
		Body:     reporter.TextBody(report.Summary),
		HTMLBody: html.String(),
		Summary:  report.Summary,
	}, nil
}

// NewChannel builds the channel selected in the report configuration
func NewChannel(cfg config.ReportConfig, logger *slog.Logger) (Channel, error) {
	switch cfg.Channel {
	case "email":
		return NewEmailChannel(EmailConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			From:       cfg.From,
			Recipients: cfg.Recipients,
			Timeout:    cfg.Timeout.Duration,
		})
	case "webhook":
		return NewWebhookChannel(cfg.WebhookURL, cfg.Timeout.Duration), nil
	case "kafka":
		return NewKafkaChannel(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "log", "":
		return NewLogChannel(logger), nil
	default:
		return nil, fmt.Errorf("unknown report channel: %s", cfg.Channel)
	}
}

// Deliver sends msg and logs a failure as a ReportDeliveryError. The error
// is returned for the caller's records only; delivery never fails a run.
func Deliver(ctx context.Context, ch Channel, msg Message, logger *slog.Logger, recorder *metrics.Recorder) error {
	logger = logging.OrDefault(logger)

	err := ch.Send(ctx, msg)
	recorder.ObserveDelivery(ch.Name(), err)
	if err != nil {
		deliveryErr := &models.ReportDeliveryError{Channel: ch.Name(), Err: err}
		logger.Warn("Report delivery failed", "error", deliveryErr)
		return deliveryErr
	}

	logger.Info("Report sent", "channel", ch.Name(), "subject", msg.Subject)
	return nil
}

// LogChannel writes the report to the logger
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logging.OrDefault(logger)}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, msg Message) error {
	c.logger.InfoContext(ctx, msg.Subject, "report", msg.Body)
	return nil
}
