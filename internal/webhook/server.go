package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/feedback"
	"github.com/mattjoyce/armsd/internal/metrics"
)

// engagementPayload is the body accepted by hmac endpoints.
type engagementPayload struct {
	ID     string   `json:"id"`
	Type   string   `json:"type"`
	Arm    string   `json:"arm"`
	Reward *float64 `json:"reward,omitempty"`
}

// Server represents the webhook HTTP server.
type Server struct {
	config   Config
	recorder Recorder
	metrics  Metrics
	logger   *slog.Logger

	// endpoints maps URL paths to their configurations
	endpoints map[string]*EndpointConfig
}

// New creates a new webhook server instance. m may be nil.
func New(config Config, recorder Recorder, m Metrics, logger *slog.Logger) *Server {
	if config.ArmMetadataKey == "" {
		config.ArmMetadataKey = DefaultArmMetadataKey
	}
	if m == nil {
		m = noopMetrics{}
	}

	endpoints := make(map[string]*EndpointConfig)
	for i := range config.Endpoints {
		ep := &config.Endpoints[i]

		if ep.MaxBodySize == 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		if ep.Kind == "" {
			ep.Kind = KindHMAC
		}
		if ep.SignatureHeader == "" {
			if ep.Kind == KindStripe {
				ep.SignatureHeader = DefaultStripeHeader
			} else {
				ep.SignatureHeader = DefaultHMACHeader
			}
		}

		endpoints[ep.Path] = ep
	}

	return &Server{
		config:    config,
		recorder:  recorder,
		metrics:   m,
		logger:    logger,
		endpoints: endpoints,
	}
}

// Start serves until ctx is cancelled. Deliveries in flight get a short
// grace period; senders retry anything cut off.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("webhook listen on %s: %w", s.config.Listen, err)
	}

	s.logger.Info("webhook server starting", "listen", ln.Addr().String(), "endpoints", len(s.endpoints))
	for path, ep := range s.endpoints {
		s.logger.Debug("webhook endpoint", "path", path, "kind", ep.Kind,
			"header", ep.SignatureHeader, "max_body", humanize.IBytes(uint64(ep.MaxBodySize)))
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		return fmt.Errorf("webhook serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("webhook server shutting down")
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("webhook shutdown: %w", err)
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook serve: %w", err)
	}
	return ctx.Err()
}

// Handler mounts one POST route per configured endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.accessLog, middleware.Recoverer)
	for _, ep := range s.endpoints {
		r.Post(ep.Path, s.endpointHandler(ep))
	}
	return r
}

// accessLog never logs bodies or signature headers.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("webhook request",
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// endpointHandler reads and authenticates a delivery, decodes it by kind and
// hands the resulting event to the recorder.
func (s *Server) endpointHandler(ep *EndpointConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, ep.MaxBodySize+1))
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to read request body")
			return
		}
		if int64(len(body)) > ep.MaxBodySize {
			s.metrics.RecordWebhookEvent(ep.Kind, "", metrics.ResultRejected)
			s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}

		signature := r.Header.Get(ep.SignatureHeader)
		if signature == "" {
			s.logger.Warn("webhook signature missing", "path", ep.Path, "header", ep.SignatureHeader)
			s.forbidden(w, ep)
			return
		}

		var (
			ev feedback.Event
			ok bool
		)
		if ep.Kind == KindStripe {
			ev, ok = s.decodeStripe(w, ep, body, signature)
		} else {
			ev, ok = s.decodeEngagement(w, ep, body, signature)
		}
		if ok {
			s.record(r.Context(), w, ep, ev)
		}
	}
}

// decodeStripe answers the request itself and returns ok=false when there is
// nothing to record.
func (s *Server) decodeStripe(w http.ResponseWriter, ep *EndpointConfig, body []byte, signature string) (feedback.Event, bool) {
	res, err := parseStripeEvent(body, signature, ep.Secret, s.config.ArmMetadataKey)
	switch {
	case errors.Is(err, errVerification):
		s.logger.Warn("webhook signature verification failed", "path", ep.Path)
		s.forbidden(w, ep)
	case err != nil:
		s.logger.Warn("stripe payload rejected", "path", ep.Path, "type", res.eventType, "error", err)
		s.metrics.RecordWebhookEvent(ep.Kind, res.eventType, metrics.ResultRejected)
		s.respondError(w, http.StatusBadRequest, "invalid payload")
	case !res.ok:
		s.metrics.RecordWebhookEvent(ep.Kind, res.eventType, metrics.ResultIgnored)
		s.respondJSON(w, http.StatusOK, Response{Received: true, Status: metrics.ResultIgnored})
	default:
		return res.event, true
	}
	return feedback.Event{}, false
}

func (s *Server) decodeEngagement(w http.ResponseWriter, ep *EndpointConfig, body []byte, signature string) (feedback.Event, bool) {
	if err := verifyHMACSignature(body, signature, ep.Secret); err != nil {
		s.logger.Warn("webhook signature verification failed", "path", ep.Path)
		s.forbidden(w, ep)
		return feedback.Event{}, false
	}
	var p engagementPayload
	if err := json.Unmarshal(body, &p); err != nil {
		s.metrics.RecordWebhookEvent(ep.Kind, "", metrics.ResultRejected)
		s.respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return feedback.Event{}, false
	}
	return feedback.Event{ID: p.ID, Type: p.Type, Arm: p.Arm, Reward: p.Reward, Source: KindHMAC}, true
}

// record hands a verified event to the recorder and maps the outcome onto a
// status code. Anything the sender cannot fix by retrying gets a 2xx or 4xx;
// store failures get a 503 so the delivery is retried.
func (s *Server) record(ctx context.Context, w http.ResponseWriter, endpoint *EndpointConfig, ev feedback.Event) {
	logger := s.logger.With("path", endpoint.Path, "type", ev.Type, "event_id", ev.ID)

	out, err := s.recorder.Record(ctx, ev)
	switch {
	case err == nil:
		s.metrics.RecordWebhookEvent(endpoint.Kind, ev.Type, metrics.ResultApplied)
		logger.Info("reward applied", "arm", out.Arm, "reward", out.Reward, "success", out.Success)
		s.respondJSON(w, http.StatusOK, Response{Received: true, Status: metrics.ResultApplied, Arm: out.Arm, Reward: out.Reward})

	case errors.Is(err, feedback.ErrDuplicateEvent):
		s.metrics.RecordWebhookEvent(endpoint.Kind, ev.Type, metrics.ResultDuplicate)
		s.respondJSON(w, http.StatusOK, Response{Received: true, Status: metrics.ResultDuplicate})

	case errors.Is(err, feedback.ErrMissingArm):
		s.metrics.RecordWebhookEvent(endpoint.Kind, ev.Type, metrics.ResultIgnored)
		logger.Warn("event names no arm; ignored")
		s.respondJSON(w, http.StatusOK, Response{Received: true, Status: metrics.ResultIgnored})

	case bandit.IsPersistence(err):
		s.metrics.RecordWebhookEvent(endpoint.Kind, ev.Type, metrics.ResultFailed)
		logger.Error("reward not applied", "error", err)
		s.respondError(w, http.StatusServiceUnavailable, "temporarily unavailable")

	case errors.Is(err, feedback.ErrUnknownEventType), errors.Is(err, bandit.ErrInvalidReward), bandit.IsConfiguration(err):
		s.metrics.RecordWebhookEvent(endpoint.Kind, ev.Type, metrics.ResultRejected)
		logger.Warn("event rejected", "error", err)
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())

	default:
		s.metrics.RecordWebhookEvent(endpoint.Kind, ev.Type, metrics.ResultFailed)
		logger.Error("reward not applied", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) forbidden(w http.ResponseWriter, endpoint *EndpointConfig) {
	s.metrics.RecordWebhookEvent(endpoint.Kind, "", metrics.ResultRejected)
	s.respondError(w, http.StatusForbidden, "forbidden")
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
