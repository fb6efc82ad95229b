package transport

import "sync"

// SwitchCount is the number of level inputs sampled every tick.
const SwitchCount = 8

// Inputs supplies the local switch and stick positions. Sticks are
// normalised: thrust in [0,1], yaw/pitch/roll in [-1,1].
type Inputs interface {
	Switch(i int) bool
	Thrust() float32
	Yaw() float32
	Pitch() float32
	Roll() float32
}

// Sticks is a settable Inputs for front-ends that push positions rather
// than being polled.
type Sticks struct {
	mu                       sync.Mutex
	switches                 [SwitchCount]bool
	thrust, yaw, pitch, roll float32
}

func (s *Sticks) SetSwitch(i int, on bool) {
	if i < 0 || i >= SwitchCount {
		return
	}
	s.mu.Lock()
	s.switches[i] = on
	s.mu.Unlock()
}

func (s *Sticks) SetAxes(thrust, yaw, pitch, roll float32) {
	s.mu.Lock()
	s.thrust, s.yaw, s.pitch, s.roll = thrust, yaw, pitch, roll
	s.mu.Unlock()
}

func (s *Sticks) Switch(i int) bool {
	if i < 0 || i >= SwitchCount {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switches[i]
}

func (s *Sticks) Thrust() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thrust
}

func (s *Sticks) Yaw() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.yaw
}

func (s *Sticks) Pitch() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pitch
}

func (s *Sticks) Roll() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roll
}
