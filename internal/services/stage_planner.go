package services

import (
	"time"

	"auction-worker/internal/config"
	"auction-worker/internal/domain"
)

// RoundPlanner lays out a pause, a fixed number of bidding rounds and the
// announcement, using configured durations.
type RoundPlanner struct {
	pause  time.Duration
	round  time.Duration
	rounds int
}

func NewStagePlanner(cfg config.StagesConfig) *RoundPlanner {
	return &RoundPlanner{
		pause:  cfg.PauseDuration,
		round:  cfg.RoundDuration,
		rounds: cfg.Rounds,
	}
}

// NewFastForwardPlanner is the sandbox cadence: same shape, shorter stages.
func NewFastForwardPlanner(cfg config.StagesConfig) *RoundPlanner {
	return &RoundPlanner{
		pause:  cfg.FastForward.PauseDuration,
		round:  cfg.FastForward.RoundDuration,
		rounds: cfg.Rounds,
	}
}

func (p *RoundPlanner) Plan(startDate time.Time) []domain.Stage {
	stages := make([]domain.Stage, 0, p.rounds+2)
	stages = append(stages, domain.Stage{Start: startDate, Type: domain.StagePause})

	at := startDate.Add(p.pause)
	for round := 1; round <= p.rounds; round++ {
		stages = append(stages, domain.Stage{Start: at, Type: domain.StageBids, Round: round})
		at = at.Add(p.round)
	}

	return append(stages, domain.Stage{Start: at, Type: domain.StageAnnouncement})
}
