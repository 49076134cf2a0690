package server

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SetupCronTasks schedules the periodic expired-session sweep, the same
// robfig/cron/v3 scheduling the teacher uses for its issuer rotation job.
func (s *Server) SetupCronTasks(logger *zerolog.Logger) *cron.Cron {
	c := cron.New()
	if s.ledger != nil {
		if _, err := c.AddFunc("@every 1m", func() {
			n, err := s.ledger.ExpireStale(s.cfg.SessionTTL)
			if err != nil {
				logger.Error().Err(err).Msg("session sweep failed")
				return
			}
			if n > 0 {
				logger.Info().Int64("expired", n).Msg("swept stale sessions")
			}
		}); err != nil {
			logger.Panic().Err(err).Msg("failed to schedule session sweep")
		}
	}
	c.Start()
	s.cron = c
	return c
}
