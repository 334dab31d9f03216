package fpm

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/golang/glog"
)

// Protocol timing defaults.
const (
	DefaultTimeout     = 2 * time.Second
	DefaultSettleDelay = 1500 * time.Millisecond
)

// EnrollSteps is the number of captures in one enrollment.
const EnrollSteps = 3

// Client dispatches commands to a fingerprint module.
// Only one command is in flight at a time and a Client must not be
// used concurrently.
type Client struct {
	ReadWriter io.ReadWriter
	// Timeout bounds the wait for a reply. It's applied when ReadWriter
	// supports SetReadDeadline, otherwise the transport's own read
	// timeout is relied on.
	Timeout time.Duration
	// SettleDelay is the pause after each enrollment step.
	SettleDelay time.Duration
}

// Match is the result of VerifyOneToMany.
// UserID and Permission are valid only when Matched returns true.
type Match struct {
	Outcome    Outcome
	UserID     UserID
	Permission Permission
}

// Matched reports whether a user was identified.
func (m Match) Matched() bool {
	return m.Outcome.OK()
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// flusher discards replies received but not read, e.g. late replies to a
// request that already timed out.
type flusher interface {
	Flush() error
}

// NewClient creates a Client with default timing.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{
		ReadWriter:  rw,
		Timeout:     DefaultTimeout,
		SettleDelay: DefaultSettleDelay,
	}
}

// RoundTrip writes a raw frame and reads one reply frame.
// Pending input is flushed first when ReadWriter supports Flush.
// A short reply caused by EOF or a read timeout is returned without error
// and fails in Decode.
func (c *Client) RoundTrip(frame []byte) ([]byte, error) {
	if f, ok := c.ReadWriter.(flusher); ok {
		if err := f.Flush(); err != nil {
			return nil, &TransportError{Op: "flush", Err: err}
		}
	}
	if glog.V(2) {
		glog.Infof("SND % X", frame)
	}
	if _, err := c.ReadWriter.Write(frame); err != nil {
		return nil, &TransportError{Op: "write", Err: err}
	}
	if d, ok := c.ReadWriter.(readDeadliner); ok && c.Timeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(c.Timeout)); err != nil {
			return nil, &TransportError{Op: "read", Err: err}
		}
		defer d.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, FrameSize)
	n, err := io.ReadFull(c.ReadWriter, buf)
	buf = buf[:n]
	if glog.V(2) {
		glog.Infof("RCV % X", buf)
	}
	if err != nil && !isShortRead(err) {
		return buf, &TransportError{Op: "read", Err: err}
	}
	return buf, nil
}

// Exchange sends a request and decodes the reply.
func (c *Client) Exchange(req Request) (Response, error) {
	raw, err := c.RoundTrip(req.Bytes())
	if err != nil {
		return Response{}, err
	}
	resp, err := Decode(raw)
	if err != nil {
		return resp, err
	}
	if !resp.ChecksumOK() {
		glog.V(1).Infof("reply checksum mismatch for command 0x%02X: % X", req.Command, raw)
	}
	return resp, nil
}

// do runs a status-only command.
func (c *Client) do(req Request) (Outcome, error) {
	resp, err := c.Exchange(req)
	if err != nil {
		if IsMalformed(err) {
			return MalformedOutcome, nil
		}
		return Outcome{}, err
	}
	return OutcomeOf(resp), nil
}

// EnrollStep sends one of the three enrollment captures. step is 1..3.
func (c *Client) EnrollStep(uid UserID, perm Permission, step int) (Outcome, error) {
	if step < 1 || step > EnrollSteps {
		return Outcome{}, ErrInvalidStep
	}
	return c.do(Request{
		Command: CmdEnroll1 + byte(step-1),
		Param1:  uid.High(),
		Param2:  uid.Low(),
		Param3:  byte(perm),
	})
}

// Enroll runs all enrollment steps. before is called ahead of each step so
// the caller can ask for the finger to be placed; it may be nil. The settle
// delay is waited after every step. The outcome of each executed step is
// returned even if a later step is not reached.
func (c *Client) Enroll(ctx context.Context, uid UserID, perm Permission, before func(step int) error) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, EnrollSteps)
	for step := 1; step <= EnrollSteps; step++ {
		if before != nil {
			if err := before(step); err != nil {
				return outcomes, err
			}
		}
		outcome, err := c.EnrollStep(uid, perm, step)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
		if err := c.settle(ctx); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func (c *Client) settle(ctx context.Context) error {
	if c.SettleDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// VerifyOneToMany identifies the placed finger against all users.
// Unless the module answers NoUser or Timeout, bytes 2-3 of the reply are
// the matched user and byte 4 is its permission.
func (c *Client) VerifyOneToMany() (Match, error) {
	resp, err := c.Exchange(Request{Command: CmdVerifyOneToMany})
	if err != nil {
		if IsMalformed(err) {
			return Match{Outcome: MalformedOutcome}, nil
		}
		return Match{}, err
	}
	outcome := ReplyOutcome(CmdVerifyOneToMany, resp)
	if !outcome.OK() {
		return Match{Outcome: outcome}, nil
	}
	return Match{
		Outcome:    outcome,
		UserID:     resp.UserID(),
		Permission: Permission(resp.Status()),
	}, nil
}

// VerifyOneToOne compares the placed finger with a given user.
func (c *Client) VerifyOneToOne(uid UserID) (Outcome, error) {
	return c.do(Request{Command: CmdVerifyOneToOne, Param1: uid.High(), Param2: uid.Low()})
}

// DeleteUser removes a user.
func (c *Client) DeleteUser(uid UserID) (Outcome, error) {
	return c.do(Request{Command: CmdDeleteUser, Param1: uid.High(), Param2: uid.Low()})
}

// DeleteAllUsers removes every user.
func (c *Client) DeleteAllUsers() (Outcome, error) {
	return c.do(Request{Command: CmdDeleteAllUsers})
}

// QueryUserCount returns the number of enrolled users. The count is only
// meaningful when the outcome is a success.
func (c *Client) QueryUserCount() (int, Outcome, error) {
	resp, err := c.Exchange(Request{Command: CmdQueryUserCount})
	if err != nil {
		if IsMalformed(err) {
			return 0, MalformedOutcome, nil
		}
		return 0, Outcome{}, err
	}
	outcome := OutcomeOf(resp)
	if !outcome.OK() {
		return 0, outcome, nil
	}
	return resp.Count(), outcome, nil
}

// QueryPermission returns the permission of a user. Any status other than
// NoUser is the permission itself and is reported as a success.
func (c *Client) QueryPermission(uid UserID) (Permission, Outcome, error) {
	resp, err := c.Exchange(Request{Command: CmdQueryPermission, Param1: uid.High(), Param2: uid.Low()})
	if err != nil {
		if IsMalformed(err) {
			return 0, MalformedOutcome, nil
		}
		return 0, Outcome{}, err
	}
	outcome := ReplyOutcome(CmdQueryPermission, resp)
	if !outcome.OK() {
		return 0, outcome, nil
	}
	return Permission(resp.Status()), outcome, nil
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || os.IsTimeout(err)
}
