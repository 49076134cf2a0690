package server

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/psiproto/ddh-psi-sum/transport"
)

// RunKafkaBridge runs the asynchronous Kafka reference transport alongside
// the HTTP one: it consumes P1's round messages from topics named by env
// and dispatches them through the same processRound1/processRound2 session
// logic the HTTP handlers use, publishing each response back onto its own
// topic. It blocks until ctx is canceled or either consumer's failure limit
// is exceeded.
func (s *Server) RunKafkaBridge(ctx context.Context, conf transport.Config, env string, logger *zerolog.Logger) error {
	producer, err := transport.NewProducer(conf)
	if err != nil {
		return err
	}
	defer producer.Close()

	round1Consumer, err := transport.NewConsumer(conf, transport.RoundTopic(env, 1), "psi-round1-bridge", logger)
	if err != nil {
		return err
	}
	defer round1Consumer.Close()

	round3Consumer, err := transport.NewConsumer(conf, transport.RoundTopic(env, 3), "psi-round3-bridge", logger)
	if err != nil {
		return err
	}
	defer round3Consumer.Close()

	resultsTopic := "psi.results.v1." + env

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return round1Consumer.Run(gctx, func(ctx context.Context, sessionID string, payload []byte) error {
			out, err := s.processRound1(ctx, sessionID, payload)
			if err != nil {
				return err
			}
			return producer.Publish(ctx, transport.RoundTopic(env, 2), sessionID, out)
		})
	})
	g.Go(func() error {
		return round3Consumer.Run(gctx, func(ctx context.Context, sessionID string, payload []byte) error {
			out, err := s.processRound2(ctx, sessionID, payload)
			if err != nil {
				return err
			}
			return producer.Publish(ctx, resultsTopic, sessionID, out)
		})
	})
	return g.Wait()
}
