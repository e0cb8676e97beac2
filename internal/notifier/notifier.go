// Package notifier renders and delivers job outcome emails. Delivery policy
// is send once, log failure, never retry: a lost email never blocks the
// worker from finishing a job.
package notifier

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/comets-analytics/comets-batch/internal/config"
	"github.com/comets-analytics/comets-batch/internal/envelope"
	"github.com/comets-analytics/comets-batch/internal/executor"
	"github.com/comets-analytics/comets-batch/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

// Mailer delivers a rendered email. Implemented by SESMailer; tests
// substitute in-memory fakes.
type Mailer interface {
	Send(ctx context.Context, sender string, recipients []string, subject, htmlBody string) error
}

// Notifier renders outcome templates and hands them to a Mailer.
type Notifier struct {
	mailer    Mailer
	sender    string
	admin     string
	templates *template.Template
}

// New builds a Notifier from email configuration.
func New(mailer Mailer, cfg config.EmailConfig) (*Notifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Notifier{
		mailer:    mailer,
		sender:    cfg.Sender,
		admin:     cfg.Admin,
		templates: tmpl,
	}, nil
}

// successData feeds the user-success template.
type successData struct {
	Filename       string
	ResultsURL     string
	ModelResults   []executor.ModelResult
	ProcessingTime time.Duration
	HasResults     bool
}

// failureData feeds the user-failure and admin-failure templates.
type failureData struct {
	Filename  string
	Email     string
	MessageID string
	Exception string
}

// JobSucceeded mails the requester their results link and per-model summary.
func (n *Notifier) JobSucceeded(ctx context.Context, env *envelope.Envelope, results []executor.ModelResult, elapsed time.Duration, resultsURL string) error {
	body, err := n.render("user-success.html", successData{
		Filename:       env.Filename,
		ResultsURL:     resultsURL,
		ModelResults:   results,
		ProcessingTime: elapsed.Round(time.Second),
		HasResults:     executor.AnySucceeded(results),
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("COMETS: Batch model results for %s", env.Filename)
	return n.send(ctx, "user-success", recipients(env.Email), subject, body)
}

// JobFailed mails the requester a plain failure notice and the admin address
// a detailed one including the captured error. Both sends are attempted even
// if the first fails.
func (n *Notifier) JobFailed(ctx context.Context, env *envelope.Envelope, detail string) error {
	subject := fmt.Sprintf("COMETS: Could not generate batch model results for %s", env.Filename)

	data := failureData{
		Filename:  env.Filename,
		Email:     env.Email,
		MessageID: env.MessageID,
		Exception: detail,
	}

	var errs []error
	if body, err := n.render("user-failure.html", data); err != nil {
		errs = append(errs, err)
	} else if err := n.send(ctx, "user-failure", recipients(env.Email), subject, body); err != nil {
		errs = append(errs, err)
	}

	if body, err := n.render("admin-failure.html", data); err != nil {
		errs = append(errs, err)
	} else if err := n.send(ctx, "admin-failure", recipients(n.admin), subject, body); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (n *Notifier) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := n.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (n *Notifier) send(ctx context.Context, kind string, to []string, subject, body string) error {
	if err := n.mailer.Send(ctx, n.sender, to, subject, body); err != nil {
		metrics.NotificationErrors.Inc()
		return fmt.Errorf("send %s notification: %w", kind, err)
	}
	metrics.NotificationsSent.WithLabelValues(kind).Inc()
	return nil
}

// recipients splits a comma-separated address list.
func recipients(addresses string) []string {
	parts := strings.Split(addresses, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
