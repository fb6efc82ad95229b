package protocol

import (
	"encoding/binary"
	"iter"
)

type FieldKind uint8

const (
	KindU8 FieldKind = iota + 1
	KindU16
	KindU32
	KindF32
	KindStr     // u32 length + bytes
	KindRaw     // fixed N bytes
	KindF32List // u32 count + count floats
	KindSized   // raw bytes, length is the last u32 of the record
)

type Field struct {
	Kind FieldKind
	N    int
}

var (
	U8      = Field{Kind: KindU8}
	U16     = Field{Kind: KindU16}
	U32     = Field{Kind: KindU32}
	F32     = Field{Kind: KindF32}
	Str     = Field{Kind: KindStr}
	F32List = Field{Kind: KindF32List}
	Sized   = Field{Kind: KindSized}
)

func Raw(n int) Field { return Field{Kind: KindRaw, N: n} }

// Layout is the ordered field list of one opcode's payload.
type Layout []Field

// size returns how many bytes of rest belong to the payload. ok is false when
// rest is shorter than the layout requires, in which case all of rest is
// claimed.
func (l Layout) size(rest []byte) (n int, ok bool) {
	var last uint32
	need := func(k uint64) bool {
		if uint64(len(rest)-n) < k {
			n = len(rest)
			return false
		}
		n += int(k)
		return true
	}
	for _, fd := range l {
		switch fd.Kind {
		case KindU8:
			if !need(1) {
				return n, false
			}
		case KindU16:
			if !need(2) {
				return n, false
			}
		case KindU32:
			if len(rest)-n >= 4 {
				last = binary.BigEndian.Uint32(rest[n:])
			}
			if !need(4) {
				return n, false
			}
		case KindF32:
			if !need(4) {
				return n, false
			}
		case KindRaw:
			if !need(uint64(fd.N)) {
				return n, false
			}
		case KindStr, KindF32List:
			if len(rest)-n < 4 {
				n = len(rest)
				return n, false
			}
			count := uint64(binary.BigEndian.Uint32(rest[n:]))
			n += 4
			if fd.Kind == KindF32List {
				count *= 4
			}
			if !need(count) {
				return n, false
			}
		case KindSized:
			if !need(uint64(last)) {
				return n, false
			}
		}
	}
	return n, true
}

// Layouts maps opcodes to their payload layout for one direction of travel.
type Layouts map[Opcode]Layout

// Known reports whether op has a layout in the table.
func (l Layouts) Known(op Opcode) bool {
	_, ok := l[op]
	return ok
}

// Records lazily decodes data into (opcode, payload) records. Unknown
// opcodes yield an empty payload and decoding continues with the next
// opcode. A truncated record yields whatever bytes remain.
func (l Layouts) Records(data []byte) iter.Seq2[Opcode, *Reader] {
	return func(yield func(Opcode, *Reader) bool) {
		off := 0
		for len(data)-off >= 2 {
			op := Opcode(binary.BigEndian.Uint16(data[off:]))
			off += 2
			n := 0
			if layout, ok := l[op]; ok {
				n, _ = layout.size(data[off:])
			}
			payload := data[off : off+n]
			off += n
			if !yield(op, NewReader(payload)) {
				return
			}
		}
	}
}

// Uplink describes records sent by the ground controller.
var Uplink = Layouts{
	Unknown:             {},
	Ping:                {U16, U16},
	Controls:            {Raw(ControlSampleSize)},
	GetBoardInfos:       {},
	GetSensorsInfos:     {},
	GetConfigFile:       {},
	SetConfigFile:       {U32, Str},
	UpdateUploadInit:    {},
	UpdateUploadData:    {U32, U32, U32, U32, U32, Sized},
	UpdateUploadProcess: {U32},
	EnableTunDevice:     {},
	DisableTunDevice:    {},
	GetUsername:         {},
	SetFullTelemetry:    {U32},
	Calibrate:           {U32, F32},
	CalibrateESCs:       {},
	Arm:                 {},
	Disarm:              {},
	ResetBattery:        {U32},
	MotorTest:           {U32},
	SetMode:             {U32},
	SetRoll:             {F32},
	SetPitch:            {F32},
	SetYaw:              {F32},
	SetThrust:           {F32},
	RollPIDFactors:      {},
	PitchPIDFactors:     {},
	YawPIDFactors:       {},
	OuterPIDFactors:     {},
	HorizonOffset:       {},
	SetRollPIDP:         {F32},
	SetRollPIDI:         {F32},
	SetRollPIDD:         {F32},
	SetPitchPIDP:        {F32},
	SetPitchPIDI:        {F32},
	SetPitchPIDD:        {F32},
	SetYawPIDP:          {F32},
	SetYawPIDI:          {F32},
	SetYawPIDD:          {F32},
	SetOuterPIDP:        {F32},
	SetOuterPIDI:        {F32},
	SetOuterPIDD:        {F32},
	SetHorizonOffset:    {F32, F32},

	VideoPause:              {},
	VideoResume:             {},
	VideoTakePicture:        {},
	VideoStartRecord:        {},
	VideoStopRecord:         {},
	VideoBrightnessIncrease: {},
	VideoBrightnessDecrease: {},
	VideoContrastIncrease:   {},
	VideoContrastDecrease:   {},
	VideoSaturationIncrease: {},
	VideoSaturationDecrease: {},
	VideoWhiteBalance:       {},
	VideoNightMode:          {U32},
	GetRecordingsList:       {},
}

// Downlink describes records sent by the vehicle.
var Downlink = Layouts{
	Unknown:             {},
	Ping:                {U16, U16},
	Status:              {U32},
	Telemetry:           {Raw(TelemetrySize)},
	DebugOutput:         {Str},
	Calibrate:           {U32},
	Calibrating:         {U32},
	Arm:                 {U32},
	Disarm:              {U32},
	ResetBattery:        {U32},
	GetBoardInfos:       {Str},
	GetSensorsInfos:     {Str},
	GetConfigFile:       {U32, Str},
	SetConfigFile:       {U32},
	UpdateUploadData:    {U32},
	VBat:                {F32},
	TotalCurrent:        {F32},
	CurrentDraw:         {F32},
	BatteryLevel:        {F32},
	CPULoad:             {U32},
	CPUTemp:             {U32},
	RxQuality:           {U32},
	RxLevel:             {U32},
	StabilizerFrequency: {U32},
	MotorsSpeed:         {F32List},
	RollPIDFactors:      {F32, F32, F32},
	PitchPIDFactors:     {F32, F32, F32},
	YawPIDFactors:       {F32, F32, F32},
	OuterPIDFactors:     {F32, F32, F32},
	HorizonOffset:       {F32, F32},
	SetRollPIDP:         {F32},
	SetRollPIDI:         {F32},
	SetRollPIDD:         {F32},
	SetPitchPIDP:        {F32},
	SetPitchPIDI:        {F32},
	SetPitchPIDD:        {F32},
	SetYawPIDP:          {F32},
	SetYawPIDI:          {F32},
	SetYawPIDD:          {F32},
	SetOuterPIDP:        {F32},
	SetOuterPIDI:        {F32},
	SetOuterPIDD:        {F32},
	SetHorizonOffset:    {F32, F32},
	SetThrust:           {F32},
	RollPitchYaw:        {F32, F32, F32},
	Gyro:                {F32, F32, F32},
	CurrentAcceleration: {F32},
	Altitude:            {F32},
	SetMode:             {U32},
	VideoStartRecord:    {U32},
	VideoStopRecord:     {U32},
	VideoWhiteBalance:   {Str},
	VideoNightMode:      {U32},
	GetRecordingsList:   {U32, Str},
	GetUsername:         {Str},
	ErrorCameraMissing:  {},
}
