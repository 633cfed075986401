package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/events"
	"github.com/mattjoyce/armsd/internal/feedback"
)

const maxRequestBody = 64 << 10

// handleHealthz handles GET /healthz (no auth). It lists stored beliefs so a
// dead store shows up as 503.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Store:         s.config.StoreDriver,
	}
	if s.events != nil {
		resp.Subscribers = s.events.Subscribers()
	}

	records, err := s.engine.Beliefs(r.Context())
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		resp.Status = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.StoredArms = len(records)
	respondJSON(w, http.StatusOK, resp)
}

// handleListArms handles GET /arms.
func (s *Server) handleListArms(w http.ResponseWriter, r *http.Request) {
	cat, err := s.catalog.Current()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	records, err := s.engine.Beliefs(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	byArm := make(map[string]bandit.Record, len(records))
	for _, rec := range records {
		byArm[rec.Arm] = rec
	}

	resp := ArmsResponse{
		Catalog:      cat.Fingerprint,
		OrphanPolicy: string(s.engine.OrphanPolicy()),
		Arms:         make([]ArmView, 0, len(cat.Arms)),
		Orphans:      []string{},
	}
	inCatalog := make(map[string]struct{}, len(cat.Arms))
	for _, arm := range cat.Arms {
		inCatalog[arm.Name] = struct{}{}
		view := ArmView{Name: arm.Name, Meta: arm.Meta, Alpha: bandit.PriorAlpha, Beta: bandit.PriorBeta}
		if rec, ok := byArm[arm.Name]; ok {
			view.Alpha, view.Beta = rec.Alpha, rec.Beta
			view.Initialized = true
			if !rec.UpdatedAt.IsZero() {
				ts := rec.UpdatedAt
				view.UpdatedAt = &ts
			}
		}
		view.Mean = bandit.Record{Alpha: view.Alpha, Beta: view.Beta}.Mean()
		resp.Arms = append(resp.Arms, view)
	}
	for _, rec := range records {
		if _, ok := inCatalog[rec.Arm]; !ok {
			resp.Orphans = append(resp.Orphans, rec.Arm)
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleSample handles POST /arms/sample.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	var req SampleRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cat, err := s.catalog.Current()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	arms := cat.Arms
	if len(req.Arms) > 0 {
		if arms, err = cat.Subset(req.Arms); err != nil {
			s.writeEngineError(w, err)
			return
		}
	}

	decision, err := s.engine.Select(r.Context(), arms, cat.Fingerprint)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.publish(events.TypeArmSampled, events.ArmSampled{
		DecisionID: decision.ID,
		Arm:        decision.Arm.Name,
		Draw:       decision.Draw,
		Catalog:    decision.Catalog,
	})
	respondJSON(w, http.StatusOK, decision)
}

// handleReward handles POST /arms/{arm}/reward.
func (s *Server) handleReward(w http.ResponseWriter, r *http.Request) {
	arm := strings.TrimSpace(chi.URLParam(r, "arm"))

	var req RewardRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Reward == nil && req.Type == "" {
		s.writeError(w, http.StatusBadRequest, "reward or type is required")
		return
	}

	out, err := s.recorder.Record(r.Context(), feedback.Event{
		ID:     req.EventID,
		Type:   req.Type,
		Arm:    arm,
		Reward: req.Reward,
		Source: "api",
	})
	if errors.Is(err, feedback.ErrDuplicateEvent) {
		respondJSON(w, http.StatusOK, RewardResponse{Status: "duplicate", Arm: arm})
		return
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	belief := out.Belief
	respondJSON(w, http.StatusOK, RewardResponse{
		Status:  "applied",
		Arm:     out.Arm,
		Reward:  out.Reward,
		Success: out.Success,
		Belief:  &belief,
	})
}

// handlePrune handles POST /arms/prune.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	cat, err := s.catalog.Current()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	pruned, err := s.engine.PruneOrphans(r.Context(), cat.Arms)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if pruned == nil {
		pruned = []string{}
	}
	if len(pruned) > 0 {
		s.publish(events.TypeArmsPruned, events.ArmsPruned{Arms: pruned})
	}
	respondJSON(w, http.StatusOK, PruneResponse{Pruned: pruned})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

func (s *Server) publish(eventType string, data any) {
	if s.events != nil {
		s.events.Publish(eventType, data)
	}
}

// decodeOptionalBody decodes a JSON body if one was sent.
func decodeOptionalBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps engine and recorder errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, bandit.ErrPruningDisabled):
		return http.StatusConflict
	case errors.Is(err, bandit.ErrInvalidReward),
		errors.Is(err, bandit.ErrUnnamedArm),
		errors.Is(err, bandit.ErrUnknownArm),
		errors.Is(err, feedback.ErrUnknownEventType),
		errors.Is(err, feedback.ErrMissingArm):
		return http.StatusBadRequest
	case bandit.IsConfiguration(err):
		return http.StatusUnprocessableEntity
	case bandit.IsPersistence(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		s.logger.Error("belief store unavailable", "error", err)
		msg = "belief store unavailable"
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	s.writeError(w, status, msg)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
