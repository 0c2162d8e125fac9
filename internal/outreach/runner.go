package outreach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohomer/layla-concierge/internal/messaging"
	"github.com/mohomer/layla-concierge/internal/observability/metrics"
	"github.com/mohomer/layla-concierge/pkg/logging"
)

// terminalStatuses are the MessageStatus values that mean a contact is done
// and must never be messaged again by a campaign run.
var terminalStatuses = map[string]struct{}{
	"sent": {}, "replied": {}, "completed": {}, "success": {},
}

const (
	statusSent   = "Sent"
	statusFailed = "Failed - API Error"
)

// Summary is the outcome of one campaign run.
type Summary struct {
	RunID   string
	Sent    int
	Failed  int
	Skipped int
}

func (s Summary) message(sheetID string) string {
	return fmt.Sprintf("Campaign %s: Sent %d, Failed %d, Skipped %d", sheetID, s.Sent, s.Failed, s.Skipped)
}

// Runner walks the contact sheet sequentially and messages every contact not
// already in a terminal status. Resumability lives entirely in the per-row
// status column: an interrupted run picks up where it left off on the next
// invocation.
type Runner struct {
	sheet    ContactSheet
	provider messaging.Provider
	zone     *time.Location
	delay    time.Duration
	logger   *logging.Logger
	metrics  *metrics.BotMetrics
	tracer   trace.Tracer

	sleep func(time.Duration)
	now   func() time.Time
}

// NewRunner builds a Runner. zone is the timezone for LastContactedDate
// stamps; delay throttles consecutive sends.
func NewRunner(sheet ContactSheet, provider messaging.Provider, zone *time.Location, delay time.Duration, m *metrics.BotMetrics, logger *logging.Logger) *Runner {
	if sheet == nil {
		panic("outreach: contact sheet is required")
	}
	if provider == nil {
		panic("outreach: messaging provider is required")
	}
	if zone == nil {
		zone = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		sheet:    sheet,
		provider: provider,
		zone:     zone,
		delay:    delay,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("layla.internal.outreach.runner"),
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// Run executes one campaign pass. When operator is non-empty the summary is
// also sent to that WhatsApp ID.
func (r *Runner) Run(ctx context.Context, operator string) (Summary, error) {
	ctx, span := r.tracer.Start(ctx, "outreach.run")
	defer span.End()

	summary := Summary{RunID: uuid.NewString()}
	span.SetAttributes(attribute.String("layla.run_id", summary.RunID))
	log := r.logger.With("run_id", summary.RunID, "sheet_id", r.sheet.ID())

	tpl, err := r.sheet.Template(ctx)
	if err != nil {
		return summary, fmt.Errorf("outreach: load template: %w", err)
	}
	contacts, err := r.sheet.Contacts(ctx)
	if err != nil {
		return summary, fmt.Errorf("outreach: load contacts: %w", err)
	}
	if len(contacts) == 0 {
		log.Warn("contact sheet has no rows")
		return summary, nil
	}
	log.Info("campaign run starting", "contacts", len(contacts), "interactive", tpl.HasInteractive())

	for _, contact := range contacts {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("outreach: run interrupted: %w", err)
		}

		phone := contact.Phone
		if !strings.Contains(phone, "@s.whatsapp.net") {
			phone = messaging.NormalizePhone(phone)
		}
		if phone == "" {
			summary.Skipped++
			r.metrics.ObserveOutreach("skipped")
			continue
		}
		if _, terminal := terminalStatuses[strings.ToLower(strings.TrimSpace(contact.Status))]; terminal {
			summary.Skipped++
			r.metrics.ObserveOutreach("skipped")
			continue
		}

		placeholders := Placeholders{ClientName: contact.Name, ServiceName: contact.ServiceInterest}
		var sendErr error
		switch {
		case tpl.HasInteractive():
			sendErr = r.provider.SendButtons(ctx, phone, PersonalizeInteractive(tpl.Interactive, placeholders))
		case tpl.Simple != "":
			sendErr = r.provider.SendText(ctx, phone, PersonalizeSimple(tpl.Simple, placeholders))
		default:
			summary.Skipped++
			r.metrics.ObserveOutreach("skipped")
			continue
		}

		status := statusSent
		if sendErr != nil {
			status = statusFailed
			summary.Failed++
			r.metrics.ObserveOutreach("failed")
			log.Error("outreach send failed", "row", contact.RowIndex, "error", sendErr)
		} else {
			summary.Sent++
			r.metrics.ObserveOutreach("sent")
		}
		if err := r.sheet.SetStatus(ctx, contact, status); err != nil {
			log.Error("failed to write message status", "row", contact.RowIndex, "error", err)
		}
		stamp := r.now().In(r.zone).Format("2006-01-02 15:04:05")
		if err := r.sheet.SetLastContacted(ctx, contact, stamp); err != nil {
			log.Error("failed to write last-contacted date", "row", contact.RowIndex, "error", err)
		}

		r.sleep(r.delay)
	}

	msg := summary.message(r.sheet.ID())
	log.Info("campaign run finished", "sent", summary.Sent, "failed", summary.Failed, "skipped", summary.Skipped)
	if operator != "" {
		if err := r.provider.SendText(ctx, operator, msg); err != nil {
			log.Error("failed to send run summary to operator", "error", err)
		}
	}
	return summary, nil
}
