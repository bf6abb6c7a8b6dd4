// Package packet holds the validator-internal packet representation and the
// translation from the relayer's wire form.
package packet

import "encoding/base64"

// Meta carries the addressing metadata the relayer observed for a packet.
type Meta struct {
	Addr string
	Port uint16
	// Forwarded marks packets the relayer received on its forwarding port.
	Forwarded bool
}

// Packet is a single transaction packet ready for downstream consumption.
type Packet struct {
	Data []byte
	Meta Meta
}

// Batch is a group of packets delivered in one stream message.
type Batch []Packet

// SigverifyStats is the per-batch tracer slot filled in by the signature
// verification pipeline. Batches from a trusted relayer carry a nil slot.
type SigverifyStats struct {
	TotalPackets    uint64
	ValidPackets    uint64
	DiscardedOnRecv uint64
}

// VerifiedBatch pairs batches that bypass local signature verification with
// their (absent) verification stats.
type VerifiedBatch struct {
	Batches []Batch
	Stats   *SigverifyStats
}

// WirePacket is a packet as it appears on the subscription stream. Data is
// base64 to survive the JSON framing.
type WirePacket struct {
	Data      string `json:"data"`
	Addr      string `json:"addr,omitempty"`
	Port      uint16 `json:"port,omitempty"`
	Forwarded bool   `json:"forwarded,omitempty"`
}

// WireBatch is a packet batch as it appears on the subscription stream.
type WireBatch struct {
	Packets []WirePacket `json:"packets"`
}

// FromWire translates a wire packet into the internal representation.
// Undecodable payloads yield an empty packet rather than failing the batch;
// downstream verification discards them.
func FromWire(wp WirePacket) Packet {
	data, err := base64.StdEncoding.DecodeString(wp.Data)
	if err != nil {
		data = nil
	}
	return Packet{
		Data: data,
		Meta: Meta{
			Addr:      wp.Addr,
			Port:      wp.Port,
			Forwarded: wp.Forwarded,
		},
	}
}

// BatchFromWire translates a whole wire batch.
func BatchFromWire(wb WireBatch) Batch {
	batch := make(Batch, 0, len(wb.Packets))
	for _, wp := range wb.Packets {
		batch = append(batch, FromWire(wp))
	}
	return batch
}
