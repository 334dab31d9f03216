package fpm

import (
	"encoding/binary"
	"io"
)

// Frame layout.
const (
	FrameSize byte = 8

	// FrameStart and FrameEnd share the same value.
	FrameStart byte = 0xF5
	FrameEnd   byte = 0xF5
)

// Command codes.
const (
	CmdEnroll1         byte = 0x01
	CmdEnroll2         byte = 0x02
	CmdEnroll3         byte = 0x03
	CmdDeleteUser      byte = 0x04
	CmdDeleteAllUsers  byte = 0x05
	CmdQueryUserCount  byte = 0x09
	CmdQueryPermission byte = 0x0A
	CmdVerifyOneToOne  byte = 0x0B
	CmdVerifyOneToMany byte = 0x0C
)

// UserID identifies an enrolled user. The module documents 1..4095.
type UserID uint16

// High returns the high byte as sent on the wire.
func (u UserID) High() byte {
	return byte(u >> 8)
}

// Low returns the low byte as sent on the wire.
func (u UserID) Low() byte {
	return byte(u)
}

// Permission is the privilege level stored with a user. The module
// documents 1..3 but any value is passed through.
type Permission byte

// Request is a command to the module.
type Request struct {
	Command byte
	Param1  byte
	Param2  byte
	Param3  byte
}

// Bytes returns the encoded frame.
func (r Request) Bytes() []byte {
	b := Encode(r.Command, r.Param1, r.Param2, r.Param3)
	return b[:]
}

// WriteTo writes the encoded frame.
func (r Request) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}

// Encode builds a request frame.
func Encode(cmd, p1, p2, p3 byte) (frame [8]byte) {
	frame = [8]byte{FrameStart, cmd, p1, p2, p3, 0, 0, FrameEnd}
	frame[6] = Checksum(frame[:])
	return
}

// Checksum calculates the XOR of bytes 1 to 5 of a frame.
// The frame must be at least 6 bytes long.
func Checksum(frame []byte) byte {
	return frame[1] ^ frame[2] ^ frame[3] ^ frame[4] ^ frame[5]
}

// Response is a well-formed reply frame.
type Response [8]byte

// Decode validates a reply frame. The checksum is not verified.
func Decode(raw []byte) (resp Response, err error) {
	switch {
	case len(raw) != int(FrameSize):
		err = &MalformedError{Raw: append([]byte(nil), raw...), Reason: "bad length"}
	case raw[0] != FrameStart:
		err = &MalformedError{Raw: append([]byte(nil), raw...), Reason: "bad start marker"}
	case raw[len(raw)-1] != FrameEnd:
		err = &MalformedError{Raw: append([]byte(nil), raw...), Reason: "bad end marker"}
	default:
		copy(resp[:], raw)
	}
	return
}

// Command returns byte 1.
func (r Response) Command() byte {
	return r[1]
}

// Status returns byte 4, the acknowledgment code or data byte.
func (r Response) Status() byte {
	return r[4]
}

// Word returns bytes 2 and 3 as a big-endian value.
func (r Response) Word() uint16 {
	return binary.BigEndian.Uint16(r[2:4])
}

// UserID interprets bytes 2 and 3 as a user ID.
func (r Response) UserID() UserID {
	return UserID(r.Word())
}

// Count interprets bytes 2 and 3 as a user count.
func (r Response) Count() int {
	return int(r.Word())
}

// ChecksumOK reports whether byte 6 matches the computed checksum.
// It is a diagnostic only.
func (r Response) ChecksumOK() bool {
	return r[6] == Checksum(r[:])
}
