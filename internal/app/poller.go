package app

import (
	"context"
	"time"

	"github.com/five82/tether/internal/pipeline"
	"github.com/five82/tether/internal/state"
)

const defaultPollInterval = 250 * time.Millisecond

// Probe reports the pipeline figures shown in the status bar.
type Probe interface {
	Status() pipeline.Status
	Buffered() int
	Pending() int
}

// supervisorProbe reads live counters from a supervisor.
type supervisorProbe struct {
	sup *pipeline.Supervisor
}

func (p supervisorProbe) Status() pipeline.Status { return p.sup.Status() }
func (p supervisorProbe) Buffered() int           { return p.sup.Highlight().Buffer().Len() }
func (p supervisorProbe) Pending() int            { return p.sup.Render().Pending() }

// runPoller refreshes the store at a fixed cadence until ctx is cancelled.
func runPoller(ctx context.Context, store *state.Store, probe Probe, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		refresh(store, probe)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func refresh(store *state.Store, probe Probe) {
	store.Update(probe.Status())
	store.SetCounts(probe.Buffered(), probe.Pending())
}
