package relay

import (
	"sort"
	"sync"

	"github.com/open-teleop/pilot/pkg/config"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

// Envelope flow directions.
const (
	DirectionToDevice   = "to_device"
	DirectionFromDevice = "from_device"
)

// StreamInfo holds metadata and counters for one envelope type.
type StreamInfo struct {
	Type         string `json:"type"`
	Stream       string `json:"stream,omitempty"`
	Direction    string `json:"direction"`
	Count        int64  `json:"count"`
	LastReceived int64  `json:"last_received"`
}

// StreamRegistry counts envelopes per type.
type StreamRegistry struct {
	logger  customlog.Logger
	streams map[string]*StreamInfo
	mu      sync.RWMutex
}

// NewStreamRegistry creates an empty registry.
func NewStreamRegistry(logger customlog.Logger) *StreamRegistry {
	return &StreamRegistry{
		logger:  logger,
		streams: make(map[string]*StreamInfo),
	}
}

// LoadFromConfig registers the envelope types of the configured streams.
// Counters of types that remain configured are kept.
func (r *StreamRegistry) LoadFromConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	streams := make(map[string]*StreamInfo, len(cfg.Streams))
	for _, s := range cfg.Streams {
		info := &StreamInfo{Type: s.Type, Stream: s.Name, Direction: DirectionToDevice}
		if old, ok := r.streams[s.Type]; ok {
			info.Count = old.Count
			info.LastReceived = old.LastReceived
		}
		streams[s.Type] = info
	}
	for t, info := range r.streams {
		if _, ok := streams[t]; !ok && info.Stream == "" {
			streams[t] = info
		}
	}
	r.streams = streams

	r.logger.Infof("Loaded %d stream types into registry", len(cfg.Streams))
}

// Update counts one envelope of the given type.
func (r *StreamRegistry) Update(envelopeType, direction string, timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.streams[envelopeType]
	if !exists {
		info = &StreamInfo{Type: envelopeType, Direction: direction}
		r.streams[envelopeType] = info
	}
	info.Count++
	info.LastReceived = timestamp
}

// Info returns a copy of one entry.
func (r *StreamRegistry) Info(envelopeType string) (StreamInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.streams[envelopeType]
	if !exists {
		return StreamInfo{}, false
	}
	return *info, true
}

// Stats returns copies of all entries sorted by type.
func (r *StreamRegistry) Stats() []StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]StreamInfo, 0, len(r.streams))
	for _, info := range r.streams {
		stats = append(stats, *info)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Type < stats[j].Type })
	return stats
}
