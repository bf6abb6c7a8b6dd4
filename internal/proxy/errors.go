package proxy

import "errors"

// Error kinds for a single connection attempt. Every one of these is fatal to
// the attempt only: the supervisor logs it, counts it, backs off, and redials.
// Nothing here terminates the host process.
var (
	// ErrAuthConnectionTimeout marks a dial to the auth endpoint that
	// exceeded the connection timeout.
	ErrAuthConnectionTimeout = errors.New("timed out dialing auth service")

	// ErrAuthConnectionError marks a hard dial failure to the auth endpoint.
	ErrAuthConnectionError = errors.New("auth service connection failed")

	// ErrAuthTimeout marks a handshake that exceeded the connection timeout.
	ErrAuthTimeout = errors.New("timed out authenticating")

	// ErrRelayerConnectionTimeout marks a dial to the relayer endpoint that
	// exceeded the connection timeout.
	ErrRelayerConnectionTimeout = errors.New("timed out dialing relayer")

	// ErrRelayerConnectionError marks a hard dial failure to the relayer.
	ErrRelayerConnectionError = errors.New("relayer connection failed")

	// ErrMissingTpuSocket means the relayer advertised no socket.
	ErrMissingTpuSocket = errors.New("missing tpu socket")

	// ErrBadTpuSocket means the relayer advertised an unparsable socket.
	ErrBadTpuSocket = errors.New("bad tpu socket")

	// ErrStreamDisconnected means the packet stream ended or errored.
	ErrStreamDisconnected = errors.New("stream disconnected")

	// ErrHeartbeatExpired means the liveness watchdog fired: the relayer has
	// not heartbeated within the allowed staleness window.
	ErrHeartbeatExpired = errors.New("heartbeat expired")

	// ErrHeartbeatChannel means the heartbeat sink is no longer consuming.
	ErrHeartbeatChannel = errors.New("heartbeat channel error")

	// ErrPacketForward means a packet sink is no longer consuming.
	ErrPacketForward = errors.New("packet forward error")

	// ErrIdentityChanged means the local signing identity rotated after the
	// connection was authorized for the old identity.
	ErrIdentityChanged = errors.New("validator identity changed")
)
