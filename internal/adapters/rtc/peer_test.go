package rtc

import (
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
)

const hostCandidate = `{"candidate":"candidate:1 1 udp 2130706431 127.0.0.1 34567 typ host","sdpMid":"0","sdpMLineIndex":0}`

func newOfferingLink(t *testing.T) *PeerLink {
	t.Helper()
	p, err := NewOffering(webrtc.Configuration{}, "c1", 0)
	if err != nil {
		t.Fatalf("NewOffering: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func newAnsweringLink(t *testing.T) *PeerLink {
	t.Helper()
	p, err := NewAnswering(webrtc.Configuration{}, "c1", 0)
	if err != nil {
		t.Fatalf("NewAnswering: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func (p *PeerLink) bufferState() (pending int, remoteSet bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending), p.remoteSet
}

func TestEarlyCandidateBufferedUntilAnswerApplied(t *testing.T) {
	host := newOfferingLink(t)
	guest := newAnsweringLink(t)

	offer, err := host.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	answer, err := guest.ApplyOfferCreateAnswer(offer)
	if err != nil {
		t.Fatalf("ApplyOfferCreateAnswer: %v", err)
	}

	// Relay fan-out gives no cross-sender ordering: the guest's candidate
	// can land before its answer. It must be held, not dropped or applied.
	if err := host.AddCandidate(hostCandidate); err != nil {
		t.Fatalf("AddCandidate before answer: %v", err)
	}
	if pending, remoteSet := host.bufferState(); pending != 1 || remoteSet {
		t.Fatalf("got pending=%d remoteSet=%v, want the candidate buffered", pending, remoteSet)
	}

	if err := host.ApplyAnswer(answer); err != nil {
		t.Fatalf("ApplyAnswer: %v", err)
	}
	if pending, remoteSet := host.bufferState(); pending != 0 || !remoteSet {
		t.Fatalf("got pending=%d remoteSet=%v, want buffer flushed", pending, remoteSet)
	}

	// With the remote description in place, candidates apply directly.
	if err := host.AddCandidate(hostCandidate); err != nil {
		t.Fatalf("AddCandidate after answer: %v", err)
	}
	if pending, _ := host.bufferState(); pending != 0 {
		t.Fatalf("late candidate buffered instead of applied: pending=%d", pending)
	}
}

func TestEarlyCandidateBufferedUntilOfferApplied(t *testing.T) {
	host := newOfferingLink(t)
	guest := newAnsweringLink(t)

	offer, err := host.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	if err := guest.AddCandidate(hostCandidate); err != nil {
		t.Fatalf("AddCandidate before offer: %v", err)
	}
	if pending, remoteSet := guest.bufferState(); pending != 1 || remoteSet {
		t.Fatalf("got pending=%d remoteSet=%v, want the candidate buffered", pending, remoteSet)
	}

	if _, err := guest.ApplyOfferCreateAnswer(offer); err != nil {
		t.Fatalf("ApplyOfferCreateAnswer: %v", err)
	}
	if pending, remoteSet := guest.bufferState(); pending != 0 || !remoteSet {
		t.Fatalf("got pending=%d remoteSet=%v, want buffer flushed", pending, remoteSet)
	}
}

func TestAddCandidateRejectsGarbage(t *testing.T) {
	host := newOfferingLink(t)
	if err := host.AddCandidate(`not json`); err == nil {
		t.Fatal("garbage candidate must be rejected")
	}
}

func TestAddCandidateAfterClose(t *testing.T) {
	host := newOfferingLink(t)
	host.Close()
	if err := host.AddCandidate(hostCandidate); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestCloseFiresCallbackOnce(t *testing.T) {
	host := newOfferingLink(t)

	var mu sync.Mutex
	closes := 0
	host.OnClosed(func() {
		mu.Lock()
		closes++
		mu.Unlock()
	})

	host.Close()
	host.Close()

	mu.Lock()
	defer mu.Unlock()
	if closes != 1 {
		t.Fatalf("OnClosed fired %d times, want 1", closes)
	}
}
