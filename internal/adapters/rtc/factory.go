package rtc

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/app"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
)

// Factory builds peer links with the shared ICE configuration. It is the
// concrete app.PeerFactory used by both host and joiner binaries.
type Factory struct {
	cfg       webrtc.Configuration
	heartbeat time.Duration
}

func NewFactory(cfg webrtc.Configuration, heartbeat time.Duration) *Factory {
	return &Factory{cfg: cfg, heartbeat: heartbeat}
}

func (f *Factory) NewOffering(id domain.ConnectionID) (app.PeerLink, error) {
	return NewOffering(f.cfg, id, f.heartbeat)
}

func (f *Factory) NewAnswering(id domain.ConnectionID) (app.PeerLink, error) {
	return NewAnswering(f.cfg, id, f.heartbeat)
}
