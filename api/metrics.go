package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestSpanName    = "taskboard.api.request"
	requestEventName   = "taskboard.api.request"
	requestEventDomain = "app"
	observabilityEvent = "observability.event"
	tracerName         = "taskboard-api/api"
	metricsContextKey  = "request_metrics"

	attrRoute         = "http.route"
	attrMethod        = "http.method"
	attrStatusCode    = "http.status_code"
	attrTotalMillis   = "taskboard.request.total_ms"
	attrAuthMillis    = "taskboard.request.auth_ms"
	attrStoreMillis   = "taskboard.request.store_ms"
	attrTasksReturned = "taskboard.request.tasks_returned"
	attrErrorStage    = "taskboard.request.error_stage"
	attrErrorMessage  = "error.message"
)

type requestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	route         string
	method        string
	authDuration  time.Duration
	storeDuration time.Duration
	tasksReturned int
	errorStage    string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger:        logger,
		span:          span,
		start:         time.Now(),
		route:         route,
		method:        method,
		tasksReturned: -1,
	}, spanCtx
}

// RequestMetrics opens a span per request and emits one observability event
// when the handler returns.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m, ctx := newRequestMetrics(c.Request().Context(), logger, c.Request().Method, c.Path())
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(metricsContextKey, m)

			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			} else if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
			}
			m.Log(status, err)
			return err
		}
	}
}

// metricsFrom returns the request's metrics; all methods tolerate a nil receiver.
func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}

func (m *requestMetrics) ObserveAuth(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.authDuration += duration
}

func (m *requestMetrics) ObserveStore(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.storeDuration += duration
}

func (m *requestMetrics) SetTasksReturned(count int) {
	if m == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(attrRoute, m.route),
		attribute.String(attrMethod, m.method),
		attribute.Int(attrStatusCode, status),
		attribute.Float64(attrTotalMillis, durationToMillis(time.Since(m.start))),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrAuthMillis, durationToMillis(m.authDuration)))
	}
	if m.storeDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrStoreMillis, durationToMillis(m.storeDuration)))
	}
	if m.tasksReturned >= 0 {
		attrs = append(attrs, attribute.Int(attrTasksReturned, m.tasksReturned))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrErrorStage, m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String(attrErrorMessage, err.Error()))
	}
	return attrs
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := m.attributes(status, err)
	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severityText),
		}, attrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		if severityNumber >= 17 {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"body":            m.method + " " + m.route,
		"attributes":      attrMap,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}

	entry := m.logger.WithFields(fields)
	switch {
	case severityNumber >= 17:
		entry.Error(observabilityEvent)
	case severityNumber >= 13:
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

// severityForStatus follows the OpenTelemetry log severity numbers.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= 500 || (status == 0 && err != nil):
		return "ERROR", 17
	case status >= 400:
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
