package mavlink

import "encoding/binary"

// Message ids of the messages in the ground station dialect.
const (
	MsgIDHeartbeat uint32 = 0
	MsgIDScaledIMU uint32 = 26
	MsgIDComposite uint32 = 52000
)

// Message is a decoded payload variant.
type Message interface {
	MessageID() uint32
	// MarshalPayload returns the untruncated payload in wire order.
	MarshalPayload() []byte
}

// Heartbeat is the common HEARTBEAT message (id 0).
type Heartbeat struct {
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	CustomMode     uint32
	SystemStatus   uint8
	MavlinkVersion uint8
}

func (*Heartbeat) MessageID() uint32 { return MsgIDHeartbeat }

func (m *Heartbeat) MarshalPayload() []byte {
	p := make([]byte, 9)
	binary.LittleEndian.PutUint32(p[0:], m.CustomMode)
	p[4] = m.Type
	p[5] = m.Autopilot
	p[6] = m.BaseMode
	p[7] = m.SystemStatus
	p[8] = m.MavlinkVersion
	return p
}

func decodeHeartbeat(p []byte) Message {
	return &Heartbeat{
		CustomMode:     binary.LittleEndian.Uint32(p[0:]),
		Type:           p[4],
		Autopilot:      p[5],
		BaseMode:       p[6],
		SystemStatus:   p[7],
		MavlinkVersion: p[8],
	}
}

// IMUTriple holds the raw accelerometer (mG), gyroscope (mrad/s) and
// magnetometer (mgauss) axes shared by SCALED_IMU and the composite record.
type IMUTriple struct {
	XAcc, YAcc, ZAcc    int16
	XGyro, YGyro, ZGyro int16
	XMag, YMag, ZMag    int16
}

func (t IMUTriple) put(p []byte) {
	for i, v := range []int16{t.XAcc, t.YAcc, t.ZAcc, t.XGyro, t.YGyro, t.ZGyro, t.XMag, t.YMag, t.ZMag} {
		binary.LittleEndian.PutUint16(p[2*i:], uint16(v))
	}
}

func readIMUTriple(p []byte) IMUTriple {
	v := func(i int) int16 { return int16(binary.LittleEndian.Uint16(p[2*i:])) }
	return IMUTriple{
		XAcc: v(0), YAcc: v(1), ZAcc: v(2),
		XGyro: v(3), YGyro: v(4), ZGyro: v(5),
		XMag: v(6), YMag: v(7), ZMag: v(8),
	}
}

// ScaledIMU is the common SCALED_IMU message (id 26). It is part of the
// dialect so stray autopilot traffic checksums correctly, but the pipeline
// does not plot it.
type ScaledIMU struct {
	TimeBootMs uint32
	IMUTriple
	Temperature int16 // extension, cdegC
}

func (*ScaledIMU) MessageID() uint32 { return MsgIDScaledIMU }

func (m *ScaledIMU) MarshalPayload() []byte {
	p := make([]byte, 24)
	binary.LittleEndian.PutUint32(p[0:], m.TimeBootMs)
	m.IMUTriple.put(p[4:22])
	binary.LittleEndian.PutUint16(p[22:], uint16(m.Temperature))
	return p
}

func decodeScaledIMU(p []byte) Message {
	return &ScaledIMU{
		TimeBootMs:  binary.LittleEndian.Uint32(p[0:]),
		IMUTriple:   readIMUTriple(p[4:22]),
		Temperature: int16(binary.LittleEndian.Uint16(p[22:])),
	}
}

// Composite is the BSLI2025_COMPOSITE sensor record: one accelerometer,
// gyroscope and magnetometer sample taken at a boot-relative time.
type Composite struct {
	TimeBootMs uint32
	IMUTriple
}

func (*Composite) MessageID() uint32 { return MsgIDComposite }

func (m *Composite) MarshalPayload() []byte {
	p := make([]byte, 22)
	binary.LittleEndian.PutUint32(p[0:], m.TimeBootMs)
	m.IMUTriple.put(p[4:])
	return p
}

func decodeComposite(p []byte) Message {
	return &Composite{
		TimeBootMs: binary.LittleEndian.Uint32(p[0:]),
		IMUTriple:  readIMUTriple(p[4:22]),
	}
}

func imuFields() []Field {
	fields := []Field{{Name: "time_boot_ms", Type: "uint32_t"}}
	for _, name := range []string{"xacc", "yacc", "zacc", "xgyro", "ygyro", "zgyro", "xmag", "ymag", "zmag"} {
		fields = append(fields, Field{Name: name, Type: "int16_t"})
	}
	return fields
}

var (
	HeartbeatDefinition = NewDefinition(MsgIDHeartbeat, "HEARTBEAT", []Field{
		{Name: "type", Type: "uint8_t"},
		{Name: "autopilot", Type: "uint8_t"},
		{Name: "base_mode", Type: "uint8_t"},
		{Name: "custom_mode", Type: "uint32_t"},
		{Name: "system_status", Type: "uint8_t"},
		{Name: "mavlink_version", Type: "uint8_t"},
	}, decodeHeartbeat)

	ScaledIMUDefinition = NewDefinition(MsgIDScaledIMU, "SCALED_IMU",
		append(imuFields(), Field{Name: "temperature", Type: "int16_t", Extension: true}),
		decodeScaledIMU)

	CompositeDefinition = NewDefinition(MsgIDComposite, "BSLI2025_COMPOSITE", imuFields(), decodeComposite)
)

// DefaultDialect is the dialect spoken by the flight computer.
var DefaultDialect = NewDialect(HeartbeatDefinition, ScaledIMUDefinition, CompositeDefinition)
