package scheduling

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

// OutcomeKind classifies where a scheduling turn terminated.
type OutcomeKind int

const (
	// OutcomeUnavailable means the calendar backend is not configured.
	OutcomeUnavailable OutcomeKind = iota
	// OutcomeAwaitingDetails means the turn carried no usable date or time.
	OutcomeAwaitingDetails
	// OutcomeAwaitingTime means a date was found but no clock time.
	OutcomeAwaitingTime
	// OutcomeMalformed means the extractor's date or time string failed to parse.
	OutcomeMalformed
	// OutcomeRejectedPast means the requested slot is already behind the display clock.
	OutcomeRejectedPast
	// OutcomeRejectedConflict means the slot overlaps an existing event, or
	// availability could not be confirmed.
	OutcomeRejectedConflict
	// OutcomeFailed means event creation failed after the slot checked out.
	OutcomeFailed
	// OutcomeBooked means the event was created.
	OutcomeBooked
)

// Result is the terminal state of one scheduling turn plus the text to send
// back to the user.
type Result struct {
	Kind    OutcomeKind
	Message string
}

const (
	msgUnavailable = "🚨 Sorry, appointment scheduling is currently unavailable. Please contact us directly to book your appointment."

	msgAwaitingDetails = "I'd be happy to help you schedule an appointment! 📅\n\n" +
		"Could you please provide more details? For example:\n" +
		"• What date would you prefer?\n" +
		"• What time works best for you?\n" +
		"• What type of service do you need?"

	msgNeedDate = "I understand you want to schedule an appointment, but I need a specific date. Could you please tell me which date you prefer? 📅"

	msgRejectedPast = "I can't schedule appointments in the past. Could you please choose a future date and time? 📅"

	msgMalformed = "There was an issue with the date or time format. Please provide it like 'YYYY-MM-DD' for date and 'HH:MM' for time."

	msgCreateFailed = "I encountered an issue while creating your appointment. Please try again or contact us directly."
)

// Engine runs the stateless booking pipeline: extract a datetime from free
// text, interpret it on the display clock, validate it, convert it to the
// storage clock, and book it. Each webhook turn re-runs the pipeline from
// scratch; slot filling across turns happens through the transcript, not
// retained state.
type Engine struct {
	client   ChatClient
	calendar Calendar
	zones    Zones
	model    string
	logger   *logging.Logger
	tracer   trace.Tracer

	now func() DisplayTime
}

// NewEngine builds an Engine. A nil calendar yields the fixed "scheduling
// unavailable" result on every turn rather than an error.
func NewEngine(client ChatClient, calendar Calendar, zones Zones, model string, logger *logging.Logger) *Engine {
	if zones.Display == nil || zones.Storage == nil {
		panic("scheduling: both zones are required")
	}
	if model == "" {
		model = "gpt-4o"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		client:   client,
		calendar: calendar,
		zones:    zones,
		model:    model,
		logger:   logger,
		tracer:   otel.Tracer("layla.internal.scheduling.engine"),
		now:      zones.DisplayNow,
	}
}

// Handle runs one scheduling turn over the user's message.
func (e *Engine) Handle(ctx context.Context, message string) Result {
	ctx, span := e.tracer.Start(ctx, "scheduling.handle")
	defer span.End()

	if e.calendar == nil {
		return Result{Kind: OutcomeUnavailable, Message: msgUnavailable}
	}

	info, err := ExtractDatetime(ctx, e.client, e.model, message, e.now())
	if err != nil {
		e.logger.Error("datetime extraction failed", "error", err)
		span.RecordError(err)
		return Result{Kind: OutcomeAwaitingDetails, Message: msgAwaitingDetails}
	}
	if !info.HasDatetime {
		return Result{Kind: OutcomeAwaitingDetails, Message: msgAwaitingDetails}
	}
	if info.Date == "" {
		return Result{Kind: OutcomeAwaitingDetails, Message: msgNeedDate}
	}

	date, err := time.Parse("2006-01-02", info.Date)
	if err != nil {
		e.logger.Warn("extractor returned malformed date", "date", info.Date, "error", err)
		return Result{Kind: OutcomeMalformed, Message: msgMalformed}
	}

	if info.Time == "" {
		msg := fmt.Sprintf(
			"Great! I can help you schedule a %s on %s (%s time) 📅\n\n"+
				"What time would work best for you? For example:\n"+
				"• 9:00 AM\n• 2:00 PM\n• 4:30 PM",
			info.ServiceType,
			date.Format("Monday, January 2, 2006"),
			e.zones.Display.String(),
		)
		return Result{Kind: OutcomeAwaitingTime, Message: msg}
	}

	clock, err := time.Parse("15:04", info.Time)
	if err != nil {
		e.logger.Warn("extractor returned malformed time", "time", info.Time, "error", err)
		return Result{Kind: OutcomeMalformed, Message: msgMalformed}
	}

	duration := time.Duration(info.DurationMinutes) * time.Minute
	start := e.zones.DisplayAt(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute())
	end := start.Add(duration)
	span.SetAttributes(
		attribute.String("layla.slot_display", start.Format(time.RFC3339)),
		attribute.String("layla.service", info.ServiceType),
	)

	if start.Before(e.now()) {
		return Result{Kind: OutcomeRejectedPast, Message: msgRejectedPast}
	}

	storageStart := e.zones.ToStorage(start)
	storageEnd := e.zones.ToStorage(end)
	e.logger.Info("scheduling slot resolved",
		"display_start", start.Format("2006-01-02 15:04 MST"),
		"storage_start", storageStart.Format("2006-01-02 15:04 MST"),
		"duration_minutes", info.DurationMinutes,
	)

	available, err := e.calendar.Available(ctx, storageStart, storageEnd)
	if err != nil {
		// Unreachable calendar counts as occupied, never as bookable.
		e.logger.Error("availability check failed; treating slot as taken", "error", err)
		span.RecordError(err)
		available = false
	}
	if !available {
		msg := fmt.Sprintf(
			"Unfortunately, %s is not available. 😔\n\n"+
				"Could you please suggest another time? I'd be happy to help you find an alternative slot.",
			start.Format("Monday, January 2 at 3:04 PM MST"),
		)
		return Result{Kind: OutcomeRejectedConflict, Message: msg}
	}

	ev := Event{
		Title: info.ServiceType + " - WhatsApp Booking",
		Description: fmt.Sprintf(
			"Appointment scheduled via WhatsApp.\nService: %s\nDuration: %d minutes\nIntended time (%s): %s",
			info.ServiceType, info.DurationMinutes, start.Zone(), start.Format("2006-01-02 15:04 MST"),
		),
		Start: storageStart,
		End:   storageEnd,
	}
	if _, err := e.calendar.CreateEvent(ctx, ev); err != nil {
		e.logger.Error("event creation failed", "error", err)
		span.RecordError(err)
		return Result{Kind: OutcomeFailed, Message: msgCreateFailed}
	}

	msg := fmt.Sprintf(
		"✅ Perfect! Your appointment has been scheduled:\n\n"+
			"📅 Date: %s\n"+
			"🕐 Time: %s (%s)\n"+
			"⏱️ Duration: %d minutes\n"+
			"🔧 Service: %s\n\n"+
			"You'll receive a reminder. Looking forward to seeing you! 😊",
		start.Format("Monday, January 2, 2006"),
		start.Format("3:04 PM MST"),
		start.Zone(),
		info.DurationMinutes,
		info.ServiceType,
	)
	return Result{Kind: OutcomeBooked, Message: msg}
}
