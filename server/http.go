package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/psiproto/ddh-psi-sum/psi"
)

// appError is the HTTP-facing error shape, the same status-code-plus-message
// envelope the teacher's server/tokens.go handlers return via bat-go's
// handlers.AppError, reimplemented locally since that package isn't part of
// this module's dependency set.
type appError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *appError) Error() string { return e.Message }

func errorFor(err error) *appError {
	switch {
	case psi.IsKind(err, psi.KindInvalidPoint),
		psi.IsKind(err, psi.KindInvalidCiphertext),
		psi.IsKind(err, psi.KindProtocolViolation):
		return &appError{Status: http.StatusBadRequest, Message: err.Error()}
	case psi.IsKind(err, psi.KindOverflowRisk):
		return &appError{Status: http.StatusUnprocessableEntity, Message: err.Error()}
	case errors.Is(err, ErrSessionNotFound):
		return &appError{Status: http.StatusNotFound, Message: err.Error()}
	default:
		return &appError{Status: http.StatusInternalServerError, Message: "internal error"}
	}
}

func writeError(w http.ResponseWriter, err error) {
	ae := errorFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	_ = json.NewEncoder(w).Encode(ae)
}

// envelope is the JSON wrapper every wire message (psi/wire.go's
// MarshalBinary output) travels in over the HTTP reference transport: the
// binary encoding is preserved byte-for-byte, just base64-armored to ride
// inside a JSON body alongside the session bookkeeping fields.
type envelope struct {
	Payload string `json:"payload"`
}

func encodeEnvelope(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{Payload: base64.StdEncoding.EncodeToString(payload)})
}

func decodeEnvelope(r *http.Request) ([]byte, error) {
	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(env.Payload)
}

// Router builds the HTTP reference transport: a session acts as P2's
// endpoint, accepting P1's round messages as JSON-enveloped, base64-encoded
// bodies and replying with the next round's enveloped body, per the binary
// serialization in psi/wire.go.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.requestLogger)

	r.Route("/v1/psi/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Post("/{id}/round1", s.handleRound1)
		r.Post("/{id}/round2", s.handleRound2)
		r.Get("/{id}", s.handleGetSession)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	return r
}

type createSessionRequest struct {
	Values       map[string]int64 `json:"values"`
	VMax         int64             `json:"vmax"`
	SecurityBits int               `json:"security_bits"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Payload   string `json:"payload"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wrapProtocol(err))
		return
	}
	bits := req.SecurityBits
	if bits == 0 {
		bits = s.cfg.SecurityBits
	}
	vmax := big.NewInt(req.VMax)

	pairs := make([]psi.Pair, 0, len(req.Values))
	for id, v := range req.Values {
		pairs = append(pairs, psi.Pair{ID: []byte(id), Value: big.NewInt(v)})
	}

	p2, err := psi.NewParty2(pairs, vmax, bits)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.cfg.RoundConcurrency > 0 {
		p2.SetConcurrency(s.cfg.RoundConcurrency)
	}
	setup, err := p2.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	id := uuid.NewString()
	if s.ledger != nil {
		if err := s.ledger.CreateSession(id, "party2"); err != nil {
			writeError(w, err)
			return
		}
	}
	s.sessions.Put(id, p2)
	s.metrics.LiveSessionsGauge.Set(float64(s.sessions.Len()))
	s.metrics.SessionsStarted.WithLabelValues("party2").Inc()

	body, err := setup.MarshalBinary()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(createSessionResponse{
		SessionID: id,
		Payload:   base64.StdEncoding.EncodeToString(body),
	})
}

func (s *Server) party2For(id string) (*psi.Party2, error) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	p2, ok := v.(*psi.Party2)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return p2, nil
}

// handleRound1 accepts P1's Round1Msg and replies with P2's Round2Msg, the
// middle leg of the three-round exchange.
func (s *Server) handleRound1(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := decodeEnvelope(r)
	if err != nil {
		writeError(w, wrapProtocol(err))
		return
	}

	out, err := s.processRound1(r.Context(), id, body)
	if err != nil {
		writeError(w, err)
		return
	}
	encodeEnvelope(w, out)
}

type finalizeResponse struct {
	Cardinality uint64 `json:"cardinality"`
	Sum         string `json:"sum"`
}

// handleRound2 accepts P1's Round3Msg — the final message of the exchange —
// and replies with the finalized cardinality and sum, closing the session.
func (s *Server) handleRound2(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := decodeEnvelope(r)
	if err != nil {
		writeError(w, wrapProtocol(err))
		return
	}

	out, err := s.processRound2(r.Context(), id, body)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.ledger == nil {
		writeError(w, ErrSessionNotFound)
		return
	}
	rec, err := s.ledger.FetchSession(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func wrapProtocol(err error) error {
	return &psi.Error{Kind: psi.KindProtocolViolation, Cause: err}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
