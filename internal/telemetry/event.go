// Package telemetry fans sync outcomes out to websocket subscribers, prometheus and the log.
package telemetry

import (
	"time"

	"github.com/and161185/storefront-sync/internal/model"
)

// Event types.
const (
	TypeSyncCompleted = "sync_completed"
	TypeSyncFailed    = "sync_failed"
)

// Event is emitted once per finished sync run.
type Event struct {
	Type          string            `json:"type"`
	AccountID     string            `json:"accountId"`
	ItemCount     int               `json:"itemCount"`
	DurationMs    int64             `json:"durationMs"`
	PricingMethod model.PriceMethod `json:"pricingMethod,omitempty"`
	Unmatched     int               `json:"unmatched"`
	Healthy       bool              `json:"healthy"`
	Outcome       model.Status      `json:"outcome"`
	Reason        string            `json:"reason,omitempty"`
	At            time.Time         `json:"at"`
}

// FromRun builds the event for a finished run.
func FromRun(run model.SyncRun, at time.Time) Event {
	ev := Event{
		Type:          TypeSyncCompleted,
		AccountID:     run.AccountID.String(),
		ItemCount:     run.Fetched,
		DurationMs:    run.Duration.Milliseconds(),
		PricingMethod: run.PricingMethod,
		Unmatched:     len(run.Unmatched),
		Healthy:       run.Healthy,
		Outcome:       run.Outcome,
		Reason:        run.Reason,
		At:            at.UTC(),
	}
	if run.Outcome != model.StatusOnline {
		ev.Type = TypeSyncFailed
	}
	return ev
}

// Sink consumes sync events.
type Sink interface {
	SyncFinished(ev Event)
}

// Fanout delivers every event to each sink in order. Sinks that also observe
// price resolutions receive those too.
type Fanout []Sink

func (f Fanout) SyncFinished(ev Event) {
	for _, s := range f {
		s.SyncFinished(ev)
	}
}

// PriceResolved forwards to sinks that count price resolutions.
func (f Fanout) PriceResolved(m model.PriceMethod) {
	for _, s := range f {
		if o, ok := s.(interface{ PriceResolved(model.PriceMethod) }); ok {
			o.PriceResolved(m)
		}
	}
}
