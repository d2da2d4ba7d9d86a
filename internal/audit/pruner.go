package audit

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/log"
)

// retentionDays is how long command events stay queryable.
const retentionDays = 30

// pruneSpec runs the nightly prune well outside listening hours.
const pruneSpec = "30 3 * * *"

// Pruner drops expired audit rows on a nightly schedule.
type Pruner struct {
	repo   *Repository
	cron   *cron.Cron
	logger zerolog.Logger
}

func NewPruner(repo *Repository) *Pruner {
	return &Pruner{
		repo:   repo,
		cron:   cron.New(),
		logger: log.WithComponent("audit"),
	}
}

// Start prunes once right away, then nightly.
func (p *Pruner) Start() error {
	if _, err := p.cron.AddFunc(pruneSpec, p.prune); err != nil {
		return err
	}
	p.prune()
	p.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Pruner) prune() {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	n, err := p.repo.Prune(cutoff)
	if err != nil {
		p.logger.Warn().Err(err).Msg("audit prune failed")
		return
	}
	if n > 0 {
		p.logger.Info().Int64("removed", n).Msg("audit trail pruned")
	}
}
