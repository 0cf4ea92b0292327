package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/beacon/pkg/hit"
	"github.com/platinummonkey/beacon/pkg/observability"
)

const (
	packageName     = "github.com/platinummonkey/beacon/pkg/dispatch"
	maxResponseBody = 64 << 10
)

var tracer = otel.GetTracerProvider().Tracer(packageName)

type exchangeResult struct {
	hit        hit.Hit
	method     string
	url        string
	attempt    int
	debug      bool
	statusCode int
	body       []byte
	queueTime  time.Duration
	duration   time.Duration
	err        error
	// logger carries the trace and span IDs of the exchange span
	logger *observability.Logger
}

// cacheBuster returns a 9 digit random number.
func cacheBuster() string {
	return fmt.Sprintf("%09d", rand.Uint32()%1_000_000_000)
}

// encodeHit adds qt and, when enabled, z to the hit parameters.
func encodeHit(h hit.Hit, queueTime time.Duration, bustCache bool) url.Values {
	values := url.Values{}
	for k, v := range h.Params() {
		values.Set(k, v)
	}
	values.Set(hit.KeyQueueTime, strconv.FormatInt(queueTime.Milliseconds(), 10))
	if bustCache {
		values.Set(hit.KeyCacheBuster, cacheBuster())
	}
	return values
}

// exchange performs one request for h. Non-2xx responses are reported as ErrTransport.
func (d *Dispatcher) exchange(h hit.Hit, settings Settings, attempt int) exchangeResult {
	start := d.clock.Now()
	res := exchangeResult{
		hit:       h,
		url:       d.endpoints.Select(settings.Debug, settings.Secure),
		attempt:   attempt,
		debug:     settings.Debug,
		queueTime: h.QueueTime(start),
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "beacon.dispatch.exchange", trace.WithAttributes(
		attribute.String("beacon.hit.type", h.Type()),
		attribute.Int("beacon.attempt", attempt),
		attribute.Bool("beacon.debug", settings.Debug),
	))
	defer span.End()
	res.logger = observability.LoggerWithTraceContext(ctx, d.logger)

	values := encodeHit(h, res.queueTime, settings.BustCache)

	var req *http.Request
	var err error
	if settings.PostData {
		res.method = http.MethodPost
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, res.url, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		res.method = http.MethodGet
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, res.url+"?"+values.Encode(), nil)
	}
	if err != nil {
		res.err = fmt.Errorf("%w: failed to build request: %v", ErrTransport, err)
		span.SetStatus(codes.Error, "building request")
		return res
	}
	if d.platform != nil {
		if ua := d.platform.UserAgent(); ua != "" {
			req.Header.Set("User-Agent", ua)
		}
	}

	resp, err := d.client.Do(req)
	res.duration = d.clock.Since(start)
	if err != nil {
		res.err = fmt.Errorf("%w: %v", ErrTransport, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return res
	}
	defer resp.Body.Close()

	res.statusCode = resp.StatusCode
	res.body, _ = io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.err = fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return res
}

// parseValidation extracts invalid-hit messages from a debug endpoint response. ok is
// false when the body is not a validation document.
func parseValidation(body []byte) (invalid []hit.ParserMessage, ok bool) {
	var doc hit.ValidationResponse
	if err := json.Unmarshal(body, &doc); err != nil || doc.HitParsingResult == nil {
		return nil, false
	}
	if doc.Valid() {
		return nil, true
	}
	invalid = doc.Invalid()
	if len(invalid) == 0 {
		invalid = []hit.ParserMessage{{MessageType: hit.MessageTypeError, Description: "hit reported invalid"}}
	}
	return invalid, true
}
