package protocol

import "encoding/json"

// Heartbeat frames travel over an open data channel, not the relay. They are
// advisory liveness traffic; receipt stamps the party's LastHeartbeat and
// nothing more.
type heartbeatFrame struct {
	Type string `json:"type"`
}

const heartbeatType = "heartbeat"

// HeartbeatFrame returns the wire bytes for one liveness frame.
func HeartbeatFrame() []byte {
	b, _ := json.Marshal(heartbeatFrame{Type: heartbeatType})
	return b
}

// IsHeartbeat reports whether a data-channel payload is a liveness frame.
func IsHeartbeat(data []byte) bool {
	var f heartbeatFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return false
	}
	return f.Type == heartbeatType
}
