package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/infra/i18n"
	"dialogue-orchestrator/internal/infra/logging"
	"dialogue-orchestrator/internal/infra/metrics"
	red "dialogue-orchestrator/internal/infra/redis"
	"dialogue-orchestrator/internal/usecase"
)

// RateLimiter caps how often a key may be used within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Options struct {
	RequestTimeout time.Duration
	AdvancePerMin  int
	Heartbeat      time.Duration
}

// Server exposes the session controller over HTTP, one resource per room.
type Server struct {
	uc      usecase.SessionUseCase
	auth    *Authenticator
	limiter RateLimiter
	tr      *i18n.Translator
	opts    Options
	log     *zerolog.Logger
}

// NewServer wires the API. auth and limiter may be nil.
func NewServer(uc usecase.SessionUseCase, auth *Authenticator, limiter RateLimiter, tr *i18n.Translator, opts Options, logger *zerolog.Logger) *Server {
	if tr == nil {
		tr = i18n.Default()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	l := logger.With().Str("component", "http_api").Logger()
	return &Server{uc: uc, auth: auth, limiter: limiter, tr: tr, opts: opts, log: &l}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID, Recover(s.log), RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/rooms/{room}", func(r chi.Router) {
		r.Use(s.auth.Require, s.roomScope)
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(Timeout(s.opts.RequestTimeout))
			r.Post("/session", s.handleStart)
			r.Get("/session", s.handleGet)
			r.Delete("/session", s.handleEnd)
			r.Post("/advance", s.handleAdvance)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/stage", s.handleStage)
			r.Post("/evaluation/retry", s.handleRetry)
		})
	})
	return r
}

func (s *Server) roomScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		room := chi.URLParam(r, "room")
		if c, ok := claimsFrom(r.Context()); ok && !c.CanUse(room) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(logging.WithRoom(r.Context(), room)))
	})
}

// -----------------------------
// Handlers
// -----------------------------

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var p usecase.StartParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeMessage(w, http.StatusBadRequest, "request.invalid", err)
		return
	}
	sess, err := s.uc.Start(r.Context(), chi.URLParam(r, "room"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.uc.Get(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.End(r.Context(), chi.URLParam(r, "room")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type turnResponse struct {
	*model.TurnResult
	Notices []string `json:"notices,omitempty"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	if !s.allowAdvance(r.Context(), room) {
		metrics.IncAdvanceRejected("rate_limited")
		s.writeMessage(w, http.StatusTooManyRequests, "request.rate_limited", nil)
		return
	}
	res, err := s.uc.Advance(r.Context(), room)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{TurnResult: res, Notices: s.faultNotices(r.Context(), room, res.Faults)})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	res, err := s.uc.RetryEvaluation(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{TurnResult: res})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	sess, err := s.uc.Pause(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, err := s.uc.Resume(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	st, err := s.uc.AdvanceStage(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.Stage{"stage": st})
}

// allowAdvance fails open when the limiter itself is unavailable.
func (s *Server) allowAdvance(ctx context.Context, room string) bool {
	if s.limiter == nil || s.opts.AdvancePerMin <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(ctx, red.RoomActionKey(room, "advance"), s.opts.AdvancePerMin, time.Minute)
	if err != nil {
		l := logging.With(ctx, s.log)
		l.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	return ok
}

func (s *Server) faultNotices(ctx context.Context, room string, faults []domain.Fault) []string {
	if len(faults) == 0 {
		return nil
	}
	names := map[string]string{}
	if sess, err := s.uc.Get(ctx, room); err == nil {
		names[sess.Facilitator.ID] = sess.Facilitator.Name
		for _, p := range sess.Participants {
			names[p.ID] = p.Name
		}
	}
	out := make([]string, 0, len(faults))
	for _, f := range faults {
		name := names[f.SpeakerID]
		if name == "" {
			name = f.SpeakerID
		}
		out = append(out, s.tr.T("fault.speaker_skipped", name))
	}
	return out
}

// -----------------------------
// Responses
// -----------------------------

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "session.not_found"
	case errors.Is(err, domain.ErrEvaluationFailed):
		return http.StatusBadGateway, "evaluation.failed"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "session.conflict"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "session.invalid_state"
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusUnprocessableEntity, "session.bad_config"
	case errors.Is(err, domain.ErrGeneration):
		return http.StatusBadGateway, "session.generation"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "session.generation"
	default:
		return http.StatusInternalServerError, ""
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, key := classify(err)
	l := logging.With(r.Context(), s.log)
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		l.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	if key == "" {
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	s.writeMessage(w, status, key, err)
}

func (s *Server) writeMessage(w http.ResponseWriter, status int, key string, err error) {
	body := errorBody{Error: s.tr.T(key)}
	if err != nil {
		body.Detail = err.Error()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
