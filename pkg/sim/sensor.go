package sim

import (
	"bytes"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/fpm.go/pkg/fpm"
)

// DefaultCapacity is the number of users the simulated module can hold.
const DefaultCapacity = 4095

// Sensor simulates a fingerprint module speaking the frame protocol.
// Frames written to it are processed immediately and replies are queued
// for Read. Read returns io.EOF when no reply is pending, which a client
// sees the same way as a serial read timeout.
type Sensor struct {
	Capacity int

	lock    sync.Mutex
	users   map[fpm.UserID]user
	pending *enrollment
	finger  int
	parser  fpm.Parser
	tx      bytes.Buffer
	frames  int

	dropNext    bool
	corruptNext bool
}

type user struct {
	perm   fpm.Permission
	finger int
}

type enrollment struct {
	uid    fpm.UserID
	perm   fpm.Permission
	step   byte
	finger int
}

// NewSensor creates an empty Sensor.
func NewSensor() *Sensor {
	return &Sensor{
		Capacity: DefaultCapacity,
		users:    make(map[fpm.UserID]user),
	}
}

// PlaceFinger puts a finger on the sensor. Fingers are identified by
// positive numbers and 0 lifts the finger.
func (s *Sensor) PlaceFinger(finger int) {
	s.lock.Lock()
	s.finger = finger
	s.lock.Unlock()
}

// AddUser stores a user directly, bypassing enrollment.
func (s *Sensor) AddUser(uid fpm.UserID, perm fpm.Permission, finger int) {
	s.lock.Lock()
	s.users[uid] = user{perm: perm, finger: finger}
	s.lock.Unlock()
}

// UserCount returns the number of stored users.
func (s *Sensor) UserCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.users)
}

// Frames returns the number of request frames processed.
func (s *Sensor) Frames() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.frames
}

// DropNextReply makes the next request go unanswered.
func (s *Sensor) DropNextReply() {
	s.lock.Lock()
	s.dropNext = true
	s.lock.Unlock()
}

// CorruptNextReply breaks the end marker of the next reply.
func (s *Sensor) CorruptNextReply() {
	s.lock.Lock()
	s.corruptNext = true
	s.lock.Unlock()
}

// Write implements io.Writer.
func (s *Sensor) Write(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	frames, skipped := s.parser.Feed(p)
	if skipped > 0 {
		glog.V(2).Infof("sim: skipped %d bytes", skipped)
	}
	for _, raw := range frames {
		var frame [8]byte
		copy(frame[:], raw)
		s.process(frame)
	}
	return len(p), nil
}

// Read implements io.Reader.
func (s *Sensor) Read(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.tx.Len() == 0 {
		return 0, io.EOF
	}
	return s.tx.Read(p)
}

// Close implements io.Closer.
func (s *Sensor) Close() error {
	return nil
}

func (s *Sensor) process(frame [8]byte) {
	s.frames++
	cmd := frame[1]
	var reply [8]byte
	if frame[7] != fpm.FrameEnd || frame[6] != fpm.Checksum(frame[:]) {
		glog.Warningf("sim: bad request frame % X", frame)
		reply = fpm.Encode(cmd, 0, 0, fpm.AckFail)
	} else {
		reply = s.handle(cmd, fpm.UserID(frame[2])<<8|fpm.UserID(frame[3]), frame[4])
	}
	if s.dropNext {
		s.dropNext = false
		return
	}
	if s.corruptNext {
		s.corruptNext = false
		reply[7] = 0
	}
	s.tx.Write(reply[:])
}

func (s *Sensor) handle(cmd byte, uid fpm.UserID, p3 byte) [8]byte {
	ack := func(code byte) [8]byte {
		return fpm.Encode(cmd, 0, 0, code)
	}
	switch cmd {
	case fpm.CmdEnroll1, fpm.CmdEnroll2, fpm.CmdEnroll3:
		return ack(s.enroll(cmd-fpm.CmdEnroll1+1, uid, fpm.Permission(p3)))
	case fpm.CmdVerifyOneToMany:
		if s.finger == 0 {
			return ack(fpm.AckTimeout)
		}
		for id, u := range s.users {
			if u.finger == s.finger {
				return fpm.Encode(cmd, id.High(), id.Low(), byte(u.perm))
			}
		}
		return ack(fpm.AckNoUser)
	case fpm.CmdVerifyOneToOne:
		u, ok := s.users[uid]
		switch {
		case !ok:
			return ack(fpm.AckNoUser)
		case s.finger == 0:
			return ack(fpm.AckTimeout)
		case s.finger != u.finger:
			return ack(fpm.AckFail)
		}
		return ack(fpm.AckSuccess)
	case fpm.CmdDeleteUser:
		if _, ok := s.users[uid]; !ok {
			return ack(fpm.AckNoUser)
		}
		delete(s.users, uid)
		return ack(fpm.AckSuccess)
	case fpm.CmdDeleteAllUsers:
		s.users = make(map[fpm.UserID]user)
		s.pending = nil
		return ack(fpm.AckSuccess)
	case fpm.CmdQueryUserCount:
		n := fpm.UserID(len(s.users))
		return fpm.Encode(cmd, n.High(), n.Low(), fpm.AckSuccess)
	case fpm.CmdQueryPermission:
		u, ok := s.users[uid]
		if !ok {
			return ack(fpm.AckNoUser)
		}
		return fpm.Encode(cmd, uid.High(), uid.Low(), byte(u.perm))
	}
	return ack(fpm.AckFail)
}

func (s *Sensor) enroll(step byte, uid fpm.UserID, perm fpm.Permission) byte {
	if step == 1 {
		s.pending = nil
		if uid == 0 || uid > 0xfff {
			return fpm.AckFail
		}
		if _, exists := s.users[uid]; exists {
			return fpm.AckUserOccupied
		}
		if len(s.users) >= s.Capacity {
			return fpm.AckFull
		}
		if s.finger == 0 {
			return fpm.AckTimeout
		}
		for _, u := range s.users {
			if u.finger == s.finger {
				return fpm.AckFingerOccupied
			}
		}
		s.pending = &enrollment{uid: uid, perm: perm, step: 1, finger: s.finger}
		return fpm.AckSuccess
	}
	p := s.pending
	if p == nil || p.uid != uid || p.step != step-1 {
		return fpm.AckFail
	}
	if s.finger == 0 {
		return fpm.AckTimeout
	}
	if s.finger != p.finger {
		s.pending = nil
		return fpm.AckFail
	}
	p.step = step
	if step == fpm.EnrollSteps {
		s.users[uid] = user{perm: p.perm, finger: p.finger}
		s.pending = nil
	}
	return fpm.AckSuccess
}
