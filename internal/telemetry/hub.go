package telemetry

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/olahol/melody"
	"go.uber.org/zap"
)

const accountKey = "account"

// Hub broadcasts events to websocket subscribers. A subscriber that connects
// with ?account=<id> only receives that account's events.
type Hub struct {
	m   *melody.Melody
	log *zap.Logger
}

// NewHub configures the melody instance.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	m := melody.New()
	m.Config.MaxMessageSize = 4096
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	m.HandleConnect(func(s *melody.Session) {
		log.Debug("telemetry subscriber connected", zap.String("remote", s.Request.RemoteAddr))
	})
	m.HandleDisconnect(func(s *melody.Session) {
		log.Debug("telemetry subscriber disconnected", zap.String("remote", s.Request.RemoteAddr))
	})
	m.HandleError(func(_ *melody.Session, err error) {
		log.Warn("telemetry websocket error", zap.Error(err))
	})
	return &Hub{m: m, log: log}
}

// HandleRequest upgrades r to a websocket subscription.
func (h *Hub) HandleRequest(w http.ResponseWriter, r *http.Request) error {
	var keys map[string]any
	if id := r.URL.Query().Get(accountKey); id != "" {
		keys = map[string]any{accountKey: id}
	}
	return h.m.HandleRequestWithKeys(w, r, keys)
}

// SyncFinished broadcasts ev to matching subscribers.
func (h *Hub) SyncFinished(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal telemetry event", zap.Error(err))
		return
	}
	err = h.m.BroadcastFilter(msg, func(s *melody.Session) bool {
		id, ok := s.Get(accountKey)
		return !ok || id == ev.AccountID
	})
	if err != nil && !errors.Is(err, melody.ErrClosed) {
		h.log.Warn("broadcast telemetry event", zap.Error(err))
	}
}

// Sessions returns the number of connected subscribers.
func (h *Hub) Sessions() int { return h.m.Len() }

// Close disconnects every subscriber.
func (h *Hub) Close() error { return h.m.Close() }
