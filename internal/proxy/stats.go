package proxy

import "github.com/rs/zerolog/log"

// ConnectionStats counts stream activity over one metrics interval. Reset
// after every report.
type ConnectionStats struct {
	EmptyMessages uint64
	Packets       uint64
	Heartbeats    uint64
}

func (s ConnectionStats) report() {
	log.Info().
		Str("event", "relayer_stream_stats").
		Uint64("num_empty_messages", s.EmptyMessages).
		Uint64("num_packets", s.Packets).
		Uint64("num_heartbeats", s.Heartbeats).
		Msg("relayer stream stats")
}
