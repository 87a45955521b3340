package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	moveEventName   = "kanban.task.move"
	moveEventDomain = "kanban"
	moveSpanName    = "api.move_task"
	moveRoute       = "/api/tasks/:id/move"
	tracerName      = "kanban-api/api"
)

// moveRequestMetrics instruments the move endpoint, the contended path of the
// API. Each request produces one span and one structured observability.event
// log entry carrying per-stage timings and the optimistic-retry outcome.
type moveRequestMetrics struct {
	logger *log.Logger
	span   trace.Span

	start          time.Time
	authDuration   time.Duration
	loadDuration   time.Duration
	commitDuration time.Duration
	retries        int
	drifted        bool
	errorStage     string
}

func newMoveRequestMetrics(ctx context.Context, logger *log.Logger) (*moveRequestMetrics, context.Context) {
	m := &moveRequestMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, moveSpanName)
	m.span = span
	return m, spanCtx
}

func (m *moveRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration > 0 {
		m.authDuration = duration
	}
}

func (m *moveRequestMetrics) ObserveLoad(duration time.Duration) {
	if duration > 0 {
		m.loadDuration = duration
	}
}

func (m *moveRequestMetrics) ObserveCommit(duration time.Duration) {
	if duration > 0 {
		m.commitDuration = duration
	}
}

func (m *moveRequestMetrics) SetRetries(retries int) {
	if retries > 0 {
		m.retries = retries
	}
}

func (m *moveRequestMetrics) SetDrifted(drifted bool) {
	m.drifted = drifted
}

func (m *moveRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log emits the span and the observability.event entry. Must be called exactly
// once; it ends the span.
func (m *moveRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)
	totalMs := durationToMillis(time.Since(m.start))

	attrs := []attribute.KeyValue{
		attribute.String("http.route", moveRoute),
		attribute.Float64("kanban.move.total_ms", totalMs),
		attribute.Int("kanban.move.retries", m.retries),
		attribute.Bool("kanban.move.drifted", m.drifted),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("kanban.move.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.loadDuration > 0 {
		attrs = append(attrs, attribute.Float64("kanban.move.load_ms", durationToMillis(m.loadDuration)))
	}
	if m.commitDuration > 0 {
		attrs = append(attrs, attribute.Float64("kanban.move.commit_ms", durationToMillis(m.commitDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("kanban.move.error_stage", m.errorStage))
	}

	if m.span != nil {
		m.span.SetAttributes(append([]attribute.KeyValue{
			attribute.Int("http.status_code", status),
		}, attrs...)...)

		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", moveEventName),
			attribute.String("event.domain", moveEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		if err != nil {
			eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
		}
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

		if err != nil || status >= http.StatusInternalServerError {
			desc := "server error"
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      moveEventName,
		"event.domain":    moveEventDomain,
		"attributes":      attrMap,
		"status":          status,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}

	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
