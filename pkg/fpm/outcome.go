package fpm

import "fmt"

// Acknowledgment codes found in the status byte.
const (
	AckSuccess        byte = 0x00
	AckFail           byte = 0x01
	AckFull           byte = 0x04
	AckNoUser         byte = 0x05
	AckUserOccupied   byte = 0x06
	AckFingerOccupied byte = 0x07
	AckTimeout        byte = 0x08
)

// Kind classifies an Outcome.
type Kind int

const (
	// KindSuccess means the command succeeded.
	KindSuccess Kind = iota
	// KindFail means the command failed.
	KindFail
	// KindDatabaseFull means no more users can be enrolled.
	KindDatabaseFull
	// KindNoUser means the user does not exist or no match was found.
	KindNoUser
	// KindUserOccupied means the user ID is already enrolled.
	KindUserOccupied
	// KindFingerOccupied means the fingerprint is already enrolled.
	KindFingerOccupied
	// KindTimeout means the module gave up waiting for a finger.
	KindTimeout
	// KindUnknown is a status byte not listed above.
	KindUnknown
	// KindMalformed is a reply which is not a valid frame.
	KindMalformed
)

var kindNames = [...]string{
	KindSuccess:        "success",
	KindFail:           "fail",
	KindDatabaseFull:   "database-full",
	KindNoUser:         "no-user",
	KindUserOccupied:   "user-occupied",
	KindFingerOccupied: "finger-occupied",
	KindTimeout:        "timeout",
	KindUnknown:        "unknown",
	KindMalformed:      "malformed",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the interpreted result of a reply.
// Code keeps the raw status byte; it is zero for KindMalformed.
type Outcome struct {
	Kind Kind
	Code byte
}

// MalformedOutcome is reported for replies failing Decode.
var MalformedOutcome = Outcome{Kind: KindMalformed}

var ackKinds = map[byte]Kind{
	AckSuccess:        KindSuccess,
	AckFail:           KindFail,
	AckFull:           KindDatabaseFull,
	AckNoUser:         KindNoUser,
	AckUserOccupied:   KindUserOccupied,
	AckFingerOccupied: KindFingerOccupied,
	AckTimeout:        KindTimeout,
}

// Interpret maps a status byte to an Outcome. It is defined for every byte.
func Interpret(status byte) Outcome {
	if kind, ok := ackKinds[status]; ok {
		return Outcome{Kind: kind, Code: status}
	}
	return Outcome{Kind: KindUnknown, Code: status}
}

// OutcomeOf interprets the status byte of a response.
func OutcomeOf(resp Response) Outcome {
	return Interpret(resp.Status())
}

// ReplyOutcome interprets a reply to cmd. For VerifyOneToMany any status
// other than NoUser and Timeout is the permission of a matched user, and
// for QueryPermission any status other than NoUser is the permission.
// Both are reported as a success keeping the raw byte in Code.
func ReplyOutcome(cmd byte, resp Response) Outcome {
	status := resp.Status()
	switch cmd {
	case CmdVerifyOneToMany:
		if status != AckNoUser && status != AckTimeout {
			return Outcome{Kind: KindSuccess, Code: status}
		}
	case CmdQueryPermission:
		if status != AckNoUser {
			return Outcome{Kind: KindSuccess, Code: status}
		}
	}
	return Interpret(status)
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o.Kind {
	case KindSuccess:
		return "Success"
	case KindFail:
		return "Fail"
	case KindDatabaseFull:
		return "Database Full"
	case KindNoUser:
		return "No User"
	case KindUserOccupied:
		return "User ID Exists"
	case KindFingerOccupied:
		return "Fingerprint Exists"
	case KindTimeout:
		return "Timeout"
	case KindMalformed:
		return "Invalid or malformed response"
	}
	return fmt.Sprintf("Unknown response: 0x%02X", o.Code)
}
