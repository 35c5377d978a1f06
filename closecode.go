package ws

import "encoding/binary"

// Close status codes per RFC 6455, section 7.4.1.
const (
	CloseNormalClosure     uint16 = 1000
	CloseGoingAway         uint16 = 1001
	CloseProtocolError     uint16 = 1002
	CloseUnsupportedData   uint16 = 1003
	CloseNoStatusReceived  uint16 = 1005
	CloseAbnormalClosure   uint16 = 1006
	CloseInvalidFramePayload uint16 = 1007
	ClosePolicyViolation   uint16 = 1008
	CloseMessageTooBig     uint16 = 1009
	CloseMandatoryExtension uint16 = 1010
	CloseInternalError     uint16 = 1011
	CloseTLSHandshake      uint16 = 1015
)

// ParseCloseInfo extracts the close code and reason from a close frame's
// payload per RFC 6455, section 5.5.1. An empty or one-byte payload is
// treated as "no status code present".
func ParseCloseInfo(payload []byte) (code uint16, reason string) {
	if len(payload) < 2 {
		return CloseNoStatusReceived, ""
	}
	return binary.BigEndian.Uint16(payload[:2]), string(payload[2:])
}

// EncodeCloseInfo builds a close frame payload from a status code and an
// optional UTF-8 reason. A zero code produces an empty payload (no status
// code present).
func EncodeCloseInfo(code uint16, reason string) []byte {
	if code == 0 {
		return nil
	}
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, code)
	copy(buf[2:], reason)
	return buf
}
