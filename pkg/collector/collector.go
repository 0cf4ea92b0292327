package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/beacon/pkg/hit"
	"github.com/platinummonkey/beacon/pkg/httputil"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// Collection paths served by the collector.
const (
	PathCollect      = "/collect"
	PathDebugCollect = "/debug/collect"
)

// Options configures a Collector.
type Options struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Clock   clockwork.Clock

	// HistorySize bounds the received-hit history. Zero means DefaultHistorySize.
	HistorySize int

	// Strict makes /collect answer 400 to invalid hits. Production endpoints always
	// answer 200 there.
	Strict bool

	// RateLimit throttles each property and client pair. Throttled hits get a 503 with
	// Retry-After and are not recorded. Nil disables throttling.
	RateLimit *RateLimitConfig
}

// Collector is a local stand-in for a measurement-protocol collection endpoint.
type Collector struct {
	logger  *observability.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	strict  bool

	history *history
	faults  *faultRegistry
	limiter *rateLimiter
}

// New creates a collector.
func New(opts Options) *Collector {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	c := &Collector{
		logger:  opts.Logger,
		metrics: opts.Metrics,
		clock:   opts.Clock,
		strict:  opts.Strict,
		history: newHistory(opts.HistorySize),
		faults:  newFaultRegistry(),
	}
	if opts.RateLimit != nil {
		limit := *opts.RateLimit
		c.limiter = newRateLimiter(&limit, opts.Clock)
	}
	return c
}

// StartCleanup periodically forgets idle rate limit buckets until ctx is done. It is a
// no-op without a rate limit.
func (c *Collector) StartCleanup(ctx context.Context) {
	if c.limiter != nil {
		c.limiter.startCleanup(ctx)
	}
}

// Routes mounts the collection and admin endpoints on router.
func (c *Collector) Routes(router *mux.Router) {
	router.HandleFunc(PathCollect, c.handleCollect(false)).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc(PathDebugCollect, c.handleCollect(true)).Methods(http.MethodGet, http.MethodPost)

	admin := router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/hits", c.handleListHits).Methods(http.MethodGet)
	admin.HandleFunc("/reset", c.handleReset).Methods(http.MethodPost)
	admin.HandleFunc("/faults", c.handleListFaults).Methods(http.MethodGet)
	admin.HandleFunc("/faults", c.handleInjectFault).Methods(http.MethodPost)
	admin.HandleFunc("/faults", c.handleRemoveFault).Methods(http.MethodDelete)
}

// Handler returns a router serving Routes behind request ID, recovery, logging and body
// size middleware.
func (c *Collector) Handler() http.Handler {
	router := mux.NewRouter()
	c.Routes(router)

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(c.logger),
		httputil.LoggingMiddleware(c.logger),
	}
	if c.metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(c.metrics))
	}
	middlewares = append(middlewares, httputil.MaxBytesMiddleware(MaxPayloadBytes))

	return httputil.Chain(middlewares...)(router)
}

// Hits returns up to limit of the most recently received hits in arrival order.
// limit <= 0 returns every retained hit.
func (c *Collector) Hits(limit int) []Received {
	return c.history.list(limit)
}

// InjectFault makes path answer with f until removed or its count is used up.
func (c *Collector) InjectFault(path string, f Fault) {
	c.faults.set(path, f)
}

// RemoveFault clears the fault on path and reports whether one was set.
func (c *Collector) RemoveFault(path string) bool {
	return c.faults.remove(path)
}

// Reset drops history and faults.
func (c *Collector) Reset() {
	c.history.reset()
	c.faults.reset()
}

// Receive validates and records one payload without going through HTTP.
func (c *Collector) Receive(method, path string, params url.Values, userAgent string) (Received, hit.ParsingResult) {
	result := Validate(path, params)

	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}

	rec := c.history.add(Received{
		ID:         uuid.NewString(),
		Method:     method,
		Path:       path,
		Params:     flat,
		Valid:      result.Valid,
		Messages:   result.ParserMessage,
		UserAgent:  userAgent,
		ReceivedAt: c.clock.Now(),
	})

	if c.metrics != nil {
		c.metrics.RecordCollectedHit(rec.Type(), result.Valid)
		for _, m := range result.ParserMessage {
			c.metrics.RecordValidationIssue(m.Parameter, m.MessageType)
		}
	}

	entry := c.logger.WithFields(map[string]interface{}{
		"hit_type": rec.Type(),
		"path":     path,
		"sequence": rec.Sequence,
	})
	if result.Valid {
		entry.Debug("hit received")
	} else {
		entry.WithField("findings", len(result.ParserMessage)).Info("invalid hit received")
	}

	return rec, result
}

func (c *Collector) handleCollect(debug bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.applyFault(w, r) {
			return
		}

		params, err := readParams(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("payload exceeds %d bytes", MaxPayloadBytes))
				return
			}
			httputil.WriteBadRequest(w, err.Error())
			return
		}

		if !c.admit(w, params) {
			return
		}

		_, result := c.Receive(r.Method, r.URL.Path, params, r.UserAgent())

		if debug {
			_ = httputil.WriteJSON(w, http.StatusOK, hit.ValidationResponse{
				HitParsingResult: []hit.ParsingResult{result},
				ParserMessage: []hit.ParserMessage{{
					MessageType: hit.MessageTypeInfo,
					Description: "Found 1 hit in the request.",
				}},
			})
			return
		}

		if c.strict && !result.Valid {
			_ = httputil.WriteJSON(w, http.StatusBadRequest, result)
			return
		}
		httputil.WritePixel(w)
	}
}

// admit applies the rate limit and writes the throttled response when the hit is refused.
func (c *Collector) admit(w http.ResponseWriter, params url.Values) bool {
	if c.limiter == nil {
		return true
	}

	key := rateLimitKey(params.Get(hit.KeyPropertyID), params.Get(hit.KeyClientID), params.Get("uid"))
	limit := strconv.Itoa(c.limiter.config.HitsPerWindow)
	reset := strconv.FormatInt(c.clock.Now().Add(c.limiter.config.WindowDuration).Unix(), 10)

	if !c.limiter.allow(key) {
		c.logger.WithField("client", key).Debug("hit throttled")
		if c.metrics != nil {
			c.metrics.RecordThrottledHit(params.Get(hit.KeyHitType))
		}
		w.Header().Set("Retry-After", c.limiter.retryAfter())
		w.Header().Set("X-RateLimit-Limit", limit)
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", reset)
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "rate limit exceeded")
		return false
	}

	w.Header().Set("X-RateLimit-Limit", limit)
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(c.limiter.remaining(key)))
	w.Header().Set("X-RateLimit-Reset", reset)
	return true
}

// applyFault writes an injected response for the request path, if any.
func (c *Collector) applyFault(w http.ResponseWriter, r *http.Request) bool {
	f, ok := c.faults.take(r.URL.Path)
	if !ok {
		return false
	}
	if f.DelayMS > 0 {
		if err := sleepCtx(r.Context(), c.clock, time.Duration(f.DelayMS)*time.Millisecond); err != nil {
			return true
		}
	}
	if f.StatusCode == 0 {
		return false
	}
	body := f.Body
	if body == "" {
		body = fmt.Sprintf(`{"error":"injected fault","status":%d}`, f.StatusCode)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.StatusCode)
	_, _ = io.WriteString(w, body)
	return true
}

func sleepCtx(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readParams reads the payload from the POST body, falling back to the query string when
// the body is empty.
func readParams(r *http.Request) (url.Values, error) {
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(body) > 0 {
			params, err := url.ParseQuery(string(body))
			if err != nil {
				return nil, fmt.Errorf("malformed payload: %w", err)
			}
			return params, nil
		}
	}
	params, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("malformed query: %w", err)
	}
	return params, nil
}

func (c *Collector) handleListHits(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	hitType := httputil.ParseQueryString(r, "t", "")

	hits := c.Hits(limit)
	if hitType != "" {
		filtered := hits[:0]
		for _, h := range hits {
			if h.Type() == hitType {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}
	_ = httputil.WriteJSON(w, http.StatusOK, hits)
}

func (c *Collector) handleReset(w http.ResponseWriter, r *http.Request) {
	c.Reset()
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type faultRequest struct {
	Path string `json:"path"`
	Fault
}

func (c *Collector) handleInjectFault(w http.ResponseWriter, r *http.Request) {
	var req faultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid fault: "+err.Error())
		return
	}
	if req.Path != PathCollect && req.Path != PathDebugCollect {
		httputil.WriteBadRequest(w, fmt.Sprintf("faults apply to %s or %s", PathCollect, PathDebugCollect))
		return
	}
	c.InjectFault(req.Path, req.Fault)
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "injected",
		"path":   req.Path,
		"fault":  req.Fault,
	})
}

func (c *Collector) handleRemoveFault(w http.ResponseWriter, r *http.Request) {
	path := httputil.ParseQueryString(r, "path", "")
	if !c.RemoveFault(path) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "no fault registered for "+path)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed", "path": path})
}

func (c *Collector) handleListFaults(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteJSON(w, http.StatusOK, c.faults.all())
}
