package mavlink

import "github.com/sigurn/crc16"

// x25Table is the CRC-16/MCRF4XX table, which is the X.25 accumulation used
// by MAVLink for frame checksums and CRC_EXTRA seeds.
var x25Table = crc16.MakeTable(crc16.CRC16_MCRF4XX)

// frameChecksum returns the checksum over the frame bytes following the start
// marker, seeded with the message's CRC_EXTRA byte.
func frameChecksum(headerAndPayload []byte, crcExtra byte) uint16 {
	crc := crc16.Init(x25Table)
	crc = crc16.Update(crc, headerAndPayload, x25Table)
	crc = crc16.Update(crc, []byte{crcExtra}, x25Table)
	return crc16.Complete(crc, x25Table)
}

// computeCRCExtra derives the CRC_EXTRA byte from a message definition in the
// same way as the MAVLink code generator: the message name, then the type and
// name of every base field in wire order.
func computeCRCExtra(name string, fields []Field) byte {
	seed := make([]byte, 0, 128)
	seed = append(seed, name+" "...)
	for _, f := range wireOrder(fields) {
		if f.Extension {
			continue
		}
		seed = append(seed, f.Type+" "...)
		seed = append(seed, f.Name+" "...)
		if f.ArrayLen > 0 {
			seed = append(seed, byte(f.ArrayLen))
		}
	}
	crc := crc16.Checksum(seed, x25Table)
	return byte(crc&0xFF) ^ byte(crc>>8)
}
