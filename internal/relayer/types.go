// Package relayer implements the HTTP client for the relayer service: the
// TPU configuration query and the streaming packet subscription. Every
// outbound call carries the current shared access credential as a bearer
// header.
package relayer

import "github.com/stakemesh-labs/relayproxy/internal/packet"

// SocketConfig is a TPU socket as advertised by the relayer.
type SocketConfig struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

// TpuConfigResponse is the relayer's advertised TPU/forwarding socket pair.
type TpuConfigResponse struct {
	Tpu        *SocketConfig `json:"tpu"`
	TpuForward *SocketConfig `json:"tpuForward"`
}

// Heartbeat is the relayer's periodic liveness signal.
type Heartbeat struct {
	Count uint64 `json:"count"`
}

// StreamMessage is one frame of the packet subscription. Exactly one of the
// fields is set; a frame with neither is the empty variant and is counted but
// otherwise ignored.
type StreamMessage struct {
	Heartbeat *Heartbeat        `json:"heartbeat,omitempty"`
	Batch     *packet.WireBatch `json:"batch,omitempty"`
}
