package api

import (
	"encoding/json"
	"net/http"

	"milgramgo/pkg/player"
	"milgramgo/pkg/session"
	"milgramgo/pkg/tracker"
	"milgramgo/pkg/turnqueue"
)

// StatsHandler reports pipeline and provider statistics.
type StatsHandler struct {
	tracker *tracker.Tracker
	queue   *turnqueue.Queue
	player  *player.Player
	session *session.Manager
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(t *tracker.Tracker, q *turnqueue.Queue, p *player.Player, s *session.Manager) *StatsHandler {
	return &StatsHandler{tracker: t, queue: q, player: p, session: s}
}

type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APISuccess  int64 `json:"api_success"`
	APIFailures int64 `json:"api_errors"`
	HitRate     int64 `json:"hit_rate"`
}

type PlaybackStats struct {
	QueueDepth int  `json:"queue_depth"`
	ReadyTurns int  `json:"ready_turns"`
	Index      int  `json:"index"`
	Playing    bool `json:"playing"`
	Streaming  bool `json:"streaming"`
}

type StatsResponse struct {
	Playback  PlaybackStats               `json:"playback"`
	Providers map[string]ProviderStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()
	status := h.player.Status()

	ready := 0
	depth := h.queue.Len()
	for i := 0; i < depth; i++ {
		if h.queue.Ready(i) {
			ready++
		}
	}

	resp := StatsResponse{
		Playback: PlaybackStats{
			QueueDepth: depth,
			ReadyTurns: ready,
			Index:      status.Index,
			Playing:    status.Playing,
			Streaming:  h.session.Streaming(),
		},
		Providers: make(map[string]ProviderStatsDTO),
	}

	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:   stats.CacheHits,
			CacheMisses: stats.CacheMisses,
			APISuccess:  stats.APISuccess,
			APIFailures: stats.APIFailures,
			HitRate:     hitRate,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
