package api

import (
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
	tracerName          = "github.com/kennyklee/jimmy-rocks/api"
	requestSpanName     = "kanban.request"
	requestEventName    = "kanban.request.completed"
	requestEventDomain  = "kanban.api"
	observabilityMsg    = "observability.event"
	observerContextKey  = "kanban.observer"
	unmatchedRouteLabel = "unmatched"
)

// requestObserver collects what one request did and reports it once as a
// structured log entry and a span.
type requestObserver struct {
	logger *log.Logger
	start  time.Time
	span   trace.Span
	route  string
	method string
	actor  string
	itemID string
}

// observe wraps every request in a span and logs one observability event when it completes.
func observe(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = unmatchedRouteLabel
			}
			req := c.Request()
			ctx, span := otel.GetTracerProvider().Tracer(tracerName).Start(req.Context(), requestSpanName,
				trace.WithSpanKind(trace.SpanKindServer))
			c.SetRequest(req.WithContext(ctx))

			obs := &requestObserver{logger: logger, start: time.Now(), span: span, route: route, method: req.Method}
			c.Set(observerContextKey, obs)

			err := next(c)
			status := c.Response().Status
			if err != nil {
				status, _ = errorResponseFor(err, c)
			}
			obs.finish(status, err)
			return err
		}
	}
}

// annotate records the caller and target item on the current request's observer.
func annotate(c echo.Context, actor, itemID string) {
	obs, ok := c.Get(observerContextKey).(*requestObserver)
	if !ok {
		return
	}
	if actor != "" {
		obs.actor = actor
	}
	if itemID != "" {
		obs.itemID = itemID
	}
}

func (o *requestObserver) finish(status int, err error) {
	defer o.span.End()

	severityText, severityNumber := severityForStatus(status, err)
	totalMs := durationToMillis(time.Since(o.start))

	attrs := map[string]any{
		"http.route":       o.route,
		"http.method":      o.method,
		"http.status_code": status,
		"kanban.total_ms":  totalMs,
	}
	spanAttrs := []attribute.KeyValue{
		attribute.String("http.route", o.route),
		attribute.String("http.method", o.method),
		attribute.Int("http.status_code", status),
		attribute.Float64("kanban.total_ms", totalMs),
	}
	if o.actor != "" {
		attrs["kanban.actor"] = o.actor
		spanAttrs = append(spanAttrs, attribute.String("kanban.actor", o.actor))
	}
	if o.itemID != "" {
		attrs["kanban.item_id"] = o.itemID
		spanAttrs = append(spanAttrs, attribute.String("kanban.item_id", o.itemID))
	}
	if err != nil {
		attrs["error.message"] = err.Error()
		spanAttrs = append(spanAttrs, attribute.String("error.message", err.Error()))
	}

	o.span.SetAttributes(spanAttrs...)
	o.span.AddEvent(observabilityMsg, trace.WithAttributes(append([]attribute.KeyValue{
		attribute.String("event.name", requestEventName),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, spanAttrs...)...))
	if status >= http.StatusInternalServerError {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		o.span.SetStatus(codes.Error, desc)
	} else {
		o.span.SetStatus(codes.Ok, "")
	}

	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrs,
	}
	if sc := o.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	o.logger.WithFields(fields).Log(levelForSeverity(severityText), observabilityMsg)
}

// severityForStatus maps a response to OpenTelemetry severity text and number.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	}
	return "INFO", 9
}

func levelForSeverity(text string) log.Level {
	switch text {
	case "ERROR":
		return log.ErrorLevel
	case "WARN":
		return log.WarnLevel
	}
	return log.InfoLevel
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
