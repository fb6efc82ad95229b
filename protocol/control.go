package protocol

const (
	ControlSampleSize = 4

	// Stick inputs within the deadzone are centred; outside it they are
	// pulled toward centre by the same amount.
	stickDeadzone = 0.05
	stickTrim     = 0.05
	channelScale  = 127
)

// ControlSample is one tick worth of stick channels, sent with CONTROLS.
type ControlSample struct {
	Thrust int8
	Yaw    int8
	Pitch  int8
	Roll   int8
}

func (c ControlSample) MarshalBinary() ([]byte, error) {
	return []byte{byte(c.Thrust), byte(c.Yaw), byte(c.Pitch), byte(c.Roll)}, nil
}

func (c *ControlSample) UnmarshalBinary(b []byte) error {
	if len(b) < ControlSampleSize {
		return ErrShortPayload
	}
	c.Thrust, c.Yaw, c.Pitch, c.Roll = int8(b[0]), int8(b[1]), int8(b[2]), int8(b[3])
	return nil
}

// Shaper turns normalised stick inputs into a ControlSample. It keeps the
// last accepted value of every channel: an out-of-range input leaves its
// channel untouched.
type Shaper struct {
	sample ControlSample
}

// Sample returns the cached control sample.
func (s *Shaper) Sample() ControlSample { return s.sample }

// Shape updates the cached sample. Thrust is accepted in [0,1], the other
// axes in [-1,1].
func (s *Shaper) Shape(thrust, yaw, pitch, roll float32) ControlSample {
	if thrust >= 0 && thrust <= 1 {
		s.sample.Thrust = int8(thrust * channelScale)
	}
	if v, ok := shapeAxis(yaw); ok {
		s.sample.Yaw = v
	}
	if v, ok := shapeAxis(pitch); ok {
		s.sample.Pitch = v
	}
	if v, ok := shapeAxis(roll); ok {
		s.sample.Roll = v
	}
	return s.sample
}

func shapeAxis(v float32) (int8, bool) {
	if v < -1 || v > 1 {
		return 0, false
	}
	switch {
	case v >= -stickDeadzone && v <= stickDeadzone:
		v = 0
	case v < 0:
		v += stickTrim
	default:
		v -= stickTrim
	}
	return int8(v * channelScale), true
}
