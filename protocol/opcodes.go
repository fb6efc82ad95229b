package protocol

import "fmt"

// Opcode tags one record inside a frame. The payload that follows depends on
// the opcode and on the direction of travel, see Uplink and Downlink.
type Opcode uint16

// Link & session
const (
	Unknown     Opcode = 0x0000
	Ping        Opcode = 0x0001
	Telemetry   Opcode = 0x0002
	Controls    Opcode = 0x0003
	Status      Opcode = 0x0004
	DebugOutput Opcode = 0x0005
)

// Vehicle information & transfers
const (
	GetBoardInfos       Opcode = 0x0010
	GetSensorsInfos     Opcode = 0x0011
	GetConfigFile       Opcode = 0x0012
	SetConfigFile       Opcode = 0x0013
	UpdateUploadInit    Opcode = 0x0014
	UpdateUploadData    Opcode = 0x0015
	UpdateUploadProcess Opcode = 0x0016
	EnableTunDevice     Opcode = 0x0017
	DisableTunDevice    Opcode = 0x0018
	GetUsername         Opcode = 0x0019
	SetFullTelemetry    Opcode = 0x001A
)

// Operational state
const (
	Calibrate     Opcode = 0x0020
	Calibrating   Opcode = 0x0021
	CalibrateESCs Opcode = 0x0022
	Arm           Opcode = 0x0023
	Disarm        Opcode = 0x0024
	ResetBattery  Opcode = 0x0025
	MotorTest     Opcode = 0x0026
	SetMode       Opcode = 0x0027
)

// Discrete telemetry
const (
	VBat                Opcode = 0x0030
	TotalCurrent        Opcode = 0x0031
	CurrentDraw         Opcode = 0x0032
	BatteryLevel        Opcode = 0x0033
	CPULoad             Opcode = 0x0034
	CPUTemp             Opcode = 0x0035
	RxQuality           Opcode = 0x0036
	RxLevel             Opcode = 0x0037
	StabilizerFrequency Opcode = 0x0038
	MotorsSpeed         Opcode = 0x0039
)

// Attitude & setpoints
const (
	RollPitchYaw        Opcode = 0x0040
	Gyro                Opcode = 0x0041
	CurrentAcceleration Opcode = 0x0042
	Altitude            Opcode = 0x0043
	SetRoll             Opcode = 0x0048
	SetPitch            Opcode = 0x0049
	SetYaw              Opcode = 0x004A
	SetThrust           Opcode = 0x004B
)

// PID gains
const (
	RollPIDFactors   Opcode = 0x0050
	PitchPIDFactors  Opcode = 0x0051
	YawPIDFactors    Opcode = 0x0052
	OuterPIDFactors  Opcode = 0x0053
	HorizonOffset    Opcode = 0x0054
	SetRollPIDP      Opcode = 0x0058
	SetRollPIDI      Opcode = 0x0059
	SetRollPIDD      Opcode = 0x005A
	SetPitchPIDP     Opcode = 0x005B
	SetPitchPIDI     Opcode = 0x005C
	SetPitchPIDD     Opcode = 0x005D
	SetYawPIDP       Opcode = 0x005E
	SetYawPIDI       Opcode = 0x005F
	SetYawPIDD       Opcode = 0x0060
	SetOuterPIDP     Opcode = 0x0061
	SetOuterPIDI     Opcode = 0x0062
	SetOuterPIDD     Opcode = 0x0063
	SetHorizonOffset Opcode = 0x0064
)

// Camera
const (
	VideoPause              Opcode = 0x0070
	VideoResume             Opcode = 0x0071
	VideoTakePicture        Opcode = 0x0072
	VideoStartRecord        Opcode = 0x0073
	VideoStopRecord         Opcode = 0x0074
	VideoBrightnessIncrease Opcode = 0x0075
	VideoBrightnessDecrease Opcode = 0x0076
	VideoContrastIncrease   Opcode = 0x0077
	VideoContrastDecrease   Opcode = 0x0078
	VideoSaturationIncrease Opcode = 0x0079
	VideoSaturationDecrease Opcode = 0x007A
	VideoWhiteBalance       Opcode = 0x007B
	VideoNightMode          Opcode = 0x007C
	GetRecordingsList       Opcode = 0x007D
)

// Errors reported by the vehicle
const (
	ErrorCameraMissing Opcode = 0x00F0
)

// STATUS bitmask
const (
	StatusArmed       uint32 = 1 << 0
	StatusCalibrated  uint32 = 1 << 1
	StatusCalibrating uint32 = 1 << 2
	StatusNightMode   uint32 = 1 << 3
)

// CALIBRATE result codes reported by the vehicle
const (
	CalibrationSuccess       uint32 = 0
	CalibrationStillValid    uint32 = 2
	CalibrationNotCalibrated uint32 = 3
)

var opcodeNames = map[Opcode]string{
	Unknown: "UNKNOWN", Ping: "PING", Telemetry: "TELEMETRY", Controls: "CONTROLS",
	Status: "STATUS", DebugOutput: "DEBUG_OUTPUT",
	GetBoardInfos: "GET_BOARD_INFOS", GetSensorsInfos: "GET_SENSORS_INFOS",
	GetConfigFile: "GET_CONFIG_FILE", SetConfigFile: "SET_CONFIG_FILE",
	UpdateUploadInit: "UPDATE_UPLOAD_INIT", UpdateUploadData: "UPDATE_UPLOAD_DATA",
	UpdateUploadProcess: "UPDATE_UPLOAD_PROCESS", EnableTunDevice: "ENABLE_TUN_DEVICE",
	DisableTunDevice: "DISABLE_TUN_DEVICE", GetUsername: "GET_USERNAME",
	SetFullTelemetry: "SET_FULL_TELEMETRY",
	Calibrate: "CALIBRATE", Calibrating: "CALIBRATING", CalibrateESCs: "CALIBRATE_ESCS",
	Arm: "ARM", Disarm: "DISARM", ResetBattery: "RESET_BATTERY", MotorTest: "MOTOR_TEST",
	SetMode: "SET_MODE",
	VBat: "VBAT", TotalCurrent: "TOTAL_CURRENT", CurrentDraw: "CURRENT_DRAW",
	BatteryLevel: "BATTERY_LEVEL", CPULoad: "CPU_LOAD", CPUTemp: "CPU_TEMP",
	RxQuality: "RX_QUALITY", RxLevel: "RX_LEVEL", StabilizerFrequency: "STABILIZER_FREQUENCY",
	MotorsSpeed: "MOTORS_SPEED",
	RollPitchYaw: "ROLL_PITCH_YAW", Gyro: "GYRO", CurrentAcceleration: "CURRENT_ACCELERATION",
	Altitude: "ALTITUDE", SetRoll: "SET_ROLL", SetPitch: "SET_PITCH", SetYaw: "SET_YAW",
	SetThrust: "SET_THRUST",
	RollPIDFactors: "ROLL_PID_FACTORS", PitchPIDFactors: "PITCH_PID_FACTORS",
	YawPIDFactors: "YAW_PID_FACTORS", OuterPIDFactors: "OUTER_PID_FACTORS",
	HorizonOffset: "HORIZON_OFFSET",
	SetRollPIDP: "SET_ROLL_PID_P", SetRollPIDI: "SET_ROLL_PID_I", SetRollPIDD: "SET_ROLL_PID_D",
	SetPitchPIDP: "SET_PITCH_PID_P", SetPitchPIDI: "SET_PITCH_PID_I", SetPitchPIDD: "SET_PITCH_PID_D",
	SetYawPIDP: "SET_YAW_PID_P", SetYawPIDI: "SET_YAW_PID_I", SetYawPIDD: "SET_YAW_PID_D",
	SetOuterPIDP: "SET_OUTER_PID_P", SetOuterPIDI: "SET_OUTER_PID_I", SetOuterPIDD: "SET_OUTER_PID_D",
	SetHorizonOffset: "SET_HORIZON_OFFSET",
	VideoPause: "VIDEO_PAUSE", VideoResume: "VIDEO_RESUME", VideoTakePicture: "VIDEO_TAKE_PICTURE",
	VideoStartRecord: "VIDEO_START_RECORD", VideoStopRecord: "VIDEO_STOP_RECORD",
	VideoBrightnessIncrease: "VIDEO_BRIGHTNESS_INCR", VideoBrightnessDecrease: "VIDEO_BRIGHTNESS_DECR",
	VideoContrastIncrease: "VIDEO_CONTRAST_INCR", VideoContrastDecrease: "VIDEO_CONTRAST_DECR",
	VideoSaturationIncrease: "VIDEO_SATURATION_INCR", VideoSaturationDecrease: "VIDEO_SATURATION_DECR",
	VideoWhiteBalance: "VIDEO_WHITE_BALANCE", VideoNightMode: "VIDEO_NIGHT_MODE",
	GetRecordingsList: "GET_RECORDINGS_LIST",
	ErrorCameraMissing: "ERROR_CAMERA_MISSING",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE(0x%04X)", uint16(op))
}
