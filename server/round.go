package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/psiproto/ddh-psi-sum/psi"
)

// processRound1 advances session id's Party2 state machine through round 2
// given P1's wire-encoded Round1Msg, returning P2's wire-encoded Round2Msg.
// Both the HTTP and Kafka reference transports call this: the protocol
// semantics live here once, the transports differ only in how bytes arrive.
func (s *Server) processRound1(ctx context.Context, id string, payload []byte) ([]byte, error) {
	p2, err := s.party2For(id)
	if err != nil {
		return nil, err
	}

	var r1 psi.Round1Msg
	if err := r1.UnmarshalBinary(payload); err != nil {
		return nil, err
	}

	start := time.Now()
	r2, err := p2.Round2(ctx, &r1)
	s.metrics.RoundLatency.WithLabelValues("party2", "2").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ObserveError(err)
		return nil, err
	}
	if s.ledger != nil {
		_ = s.ledger.AdvanceRound(id, 2)
	}
	s.metrics.RoundsCompleted.WithLabelValues("party2", "2").Inc()

	return r2.MarshalBinary()
}

// processRound2 finalizes session id given P1's wire-encoded Round3Msg,
// closing and evicting the session, and returns the JSON-encoded
// cardinality/sum result shared by both reference transports.
func (s *Server) processRound2(ctx context.Context, id string, payload []byte) ([]byte, error) {
	p2, err := s.party2For(id)
	if err != nil {
		return nil, err
	}

	var r3 psi.Round3Msg
	if err := r3.UnmarshalBinary(payload); err != nil {
		return nil, err
	}

	card, sum, err := p2.Finalize(ctx, &r3)
	if err != nil {
		s.metrics.ObserveError(err)
		return nil, err
	}
	p2.Close()
	s.sessions.Delete(id)
	s.metrics.LiveSessionsGauge.Set(float64(s.sessions.Len()))
	if s.ledger != nil {
		_ = s.ledger.CompleteSession(id, int64(card))
	}
	s.metrics.RoundsCompleted.WithLabelValues("party2", "3").Inc()

	return json.Marshal(finalizeResponse{Cardinality: card, Sum: sum.String()})
}
