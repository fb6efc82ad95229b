package protocol

import "encoding/binary"

// TelemetrySize is the payload size of a TELEMETRY record.
const TelemetrySize = 12

// TelemetryRecord is the packed TELEMETRY payload:
//
//	+---------+---------+---------+---------+-----+------+--------+-------+
//	| vbat cV | mAh     | draw cA | level   | cpu | temp | rx qual| rx dBm|
//	+---------+---------+---------+---------+-----+------+--------+-------+
//	| u16     | u16     | u16     | u16     | u8  | u8   | u8     | i8    |
//	+---------+---------+---------+---------+-----+------+--------+-------+
//
// Battery level is in units of 1/10000 (7500 = 75%).
type TelemetryRecord struct {
	BatteryVoltage uint16
	TotalCurrent   uint16
	CurrentDraw    uint16
	BatteryLevel   uint16
	CPULoad        uint8
	CPUTemp        uint8
	RxQuality      uint8
	RxLevel        int8
}

func (t TelemetryRecord) MarshalBinary() ([]byte, error) {
	b := make([]byte, TelemetrySize)
	binary.BigEndian.PutUint16(b[0:2], t.BatteryVoltage)
	binary.BigEndian.PutUint16(b[2:4], t.TotalCurrent)
	binary.BigEndian.PutUint16(b[4:6], t.CurrentDraw)
	binary.BigEndian.PutUint16(b[6:8], t.BatteryLevel)
	b[8] = t.CPULoad
	b[9] = t.CPUTemp
	b[10] = t.RxQuality
	b[11] = byte(t.RxLevel)
	return b, nil
}

func (t *TelemetryRecord) UnmarshalBinary(b []byte) error {
	if len(b) < TelemetrySize {
		return ErrShortPayload
	}
	t.BatteryVoltage = binary.BigEndian.Uint16(b[0:2])
	t.TotalCurrent = binary.BigEndian.Uint16(b[2:4])
	t.CurrentDraw = binary.BigEndian.Uint16(b[4:6])
	t.BatteryLevel = binary.BigEndian.Uint16(b[6:8])
	t.CPULoad = b[8]
	t.CPUTemp = b[9]
	t.RxQuality = b[10]
	t.RxLevel = int8(b[11])
	return nil
}

func (t TelemetryRecord) Volts() float32 { return float32(t.BatteryVoltage) / 100 }

func (t TelemetryRecord) Amps() float32 { return float32(t.CurrentDraw) / 100 }

func (t TelemetryRecord) Level() float32 { return float32(t.BatteryLevel) / 10000 }
