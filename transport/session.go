package transport

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	proto "github.com/ystepanoff/flightlink/protocol"
)

const (
	// DedupWindow is how many recent sequence numbers are remembered for
	// duplicate suppression.
	DedupWindow = 64
	// qualityWindow is how many ack-requested envelopes RxQuality covers.
	qualityWindow = 32
)

// Session holds the envelope state shared by the byte-oriented links:
// outgoing sequence numbers, duplicate suppression, acknowledgements and
// the resulting receive quality.
type Session struct {
	mu      sync.Mutex
	seq     uint32
	retries int

	seen    [DedupWindow]uint32
	seenLen int
	seenPos int

	pending    [qualityWindow]uint32
	acked      [qualityWindow]bool
	pendingLen int
	pendingPos int
}

// NewSession starts the sequence at a random value so that a restarted
// peer's envelopes are not taken for duplicates.
func NewSession() *Session {
	var b [4]byte
	_, _ = rand.Read(b[:]) // never fails as of Go 1.24
	return &Session{seq: binary.BigEndian.Uint32(b[:]), retries: 1}
}

func (s *Session) SetRetries(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	s.retries = n
	s.mu.Unlock()
}

func (s *Session) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// Seal wraps payload in a new envelope. The returned bytes should be sent
// Retries() times; the receiver drops the copies.
func (s *Session) Seal(payload []byte, requestAck bool) ([]byte, error) {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	if requestAck {
		s.pending[s.pendingPos] = seq
		s.acked[s.pendingPos] = false
		s.pendingPos = (s.pendingPos + 1) % qualityWindow
		if s.pendingLen < qualityWindow {
			s.pendingLen++
		}
	}
	s.mu.Unlock()

	e := &proto.Envelope{Seq: seq, Payload: payload}
	if requestAck {
		e.Flags |= proto.FlagAckRequest
	}
	return proto.EncodeEnvelope(e)
}

// Open processes a decoded envelope. payload is nil for acknowledgements
// and duplicates. reply, when non-nil, is an acknowledgement to send back.
func (s *Session) Open(e *proto.Envelope) (payload, reply []byte) {
	if e.IsAck() {
		s.markAcked(e.Seq)
		return nil, nil
	}
	if e.AckRequested() {
		// acknowledge duplicates too; the first ack may have been lost
		reply, _ = proto.EncodeEnvelope(&proto.Envelope{Flags: proto.FlagAck, Seq: e.Seq})
	}
	if s.duplicate(e.Seq) {
		return nil, reply
	}
	return e.Payload, reply
}

func (s *Session) duplicate(seq uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.seenLen; i++ {
		if s.seen[i] == seq {
			return true
		}
	}
	s.seen[s.seenPos] = seq
	s.seenPos = (s.seenPos + 1) % DedupWindow
	if s.seenLen < DedupWindow {
		s.seenLen++
	}
	return false
}

func (s *Session) markAcked(seq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.pendingLen; i++ {
		if s.pending[i] == seq {
			s.acked[i] = true
			return
		}
	}
}

// Quality is the percentage of recent ack-requested envelopes that were
// acknowledged.
func (s *Session) Quality() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingLen == 0 {
		return 0
	}
	n := 0
	for i := 0; i < s.pendingLen; i++ {
		if s.acked[i] {
			n++
		}
	}
	return n * 100 / s.pendingLen
}

// Reset forgets duplicate and quality history, for use after a reconnect.
func (s *Session) Reset() {
	s.mu.Lock()
	s.seenLen, s.seenPos = 0, 0
	s.pendingLen, s.pendingPos = 0, 0
	s.mu.Unlock()
}
