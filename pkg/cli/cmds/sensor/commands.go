package sensor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/fpm.go/pkg/cli/sh"
	"github.com/robotalks/fpm.go/pkg/fpm"
)

// ParseUserID parses a user ID in decimal or 0x hex.
func ParseUserID(str string) (fpm.UserID, error) {
	val, err := strconv.ParseUint(str, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("Invalid UID: %v", err)
	}
	return fpm.UserID(val), nil
}

// ParseByte parses a byte argument in decimal or 0x hex.
func ParseByte(name, str string) (byte, error) {
	val, err := strconv.ParseUint(str, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("Invalid %s: %v", name, err)
	}
	return byte(val), nil
}

func userArg(c *ishell.Context) (fpm.UserID, bool) {
	if len(c.Args) < 1 {
		c.Err(fmt.Errorf("UID required"))
		return 0, false
	}
	uid, err := ParseUserID(c.Args[0])
	if err != nil {
		c.Err(err)
		return 0, false
	}
	return uid, true
}

func enroll(c *ishell.Context, client *fpm.Client) {
	if len(c.Args) < 2 {
		c.Err(fmt.Errorf("UID and PERM required"))
		return
	}
	uid, err := ParseUserID(c.Args[0])
	if err != nil {
		c.Err(err)
		return
	}
	perm, err := ParseByte("PERM", c.Args[1])
	if err != nil {
		c.Err(err)
		return
	}
	s := sh.ShellFrom(c)
	before := func(step int) error {
		if s.Interactive {
			c.Printf("Place finger (%d/%d) and press ENTER ", step, fpm.EnrollSteps)
			c.ReadLine()
		}
		return nil
	}
	outcomes, err := client.Enroll(context.Background(), uid, fpm.Permission(perm), before)
	for n, outcome := range outcomes {
		sh.PrintResult(c, sh.NewResult(fmt.Sprintf("enroll.%d", n+1), outcome).WithUserID(uid), nil)
	}
	if err != nil {
		c.Err(err)
	}
}

var (
	// EnrollCmd enrolls a user in three captures.
	EnrollCmd = ishell.Cmd{
		Name:    "enroll",
		Aliases: []string{"e"},
		Help:    "UID PERM",
		Func:    sh.MustBeOpened(enroll),
	}

	// VerifyCmd identifies the placed finger.
	VerifyCmd = ishell.Cmd{
		Name:    "verify",
		Aliases: []string{"v"},
		Help:    "identify the placed finger",
		Func: sh.MustBeOpened(func(c *ishell.Context, client *fpm.Client) {
			m, err := client.VerifyOneToMany()
			if err != nil {
				sh.PrintResult(c, nil, err)
				return
			}
			r := sh.NewResult("verify", m.Outcome)
			if m.Matched() {
				r.WithUserID(m.UserID).WithPermission(m.Permission)
			}
			sh.PrintResult(c, r, nil)
		}),
	}

	// Verify1Cmd compares the placed finger with a user.
	Verify1Cmd = ishell.Cmd{
		Name:    "verify1",
		Aliases: []string{"v1"},
		Help:    "UID",
		Func: sh.MustBeOpened(func(c *ishell.Context, client *fpm.Client) {
			uid, ok := userArg(c)
			if !ok {
				return
			}
			outcome, err := client.VerifyOneToOne(uid)
			sh.PrintResult(c, sh.NewResult("verify1", outcome).WithUserID(uid), err)
		}),
	}

	// DeleteCmd deletes a user.
	DeleteCmd = ishell.Cmd{
		Name:    "delete",
		Aliases: []string{"del", "rm"},
		Help:    "UID",
		Func: sh.MustBeOpened(func(c *ishell.Context, client *fpm.Client) {
			uid, ok := userArg(c)
			if !ok {
				return
			}
			outcome, err := client.DeleteUser(uid)
			sh.PrintResult(c, sh.NewResult("delete", outcome).WithUserID(uid), err)
		}),
	}

	// DeleteAllCmd deletes all users.
	DeleteAllCmd = ishell.Cmd{
		Name: "delete-all",
		Help: "",
		Func: sh.MustBeOpened(func(c *ishell.Context, client *fpm.Client) {
			outcome, err := client.DeleteAllUsers()
			sh.PrintResult(c, sh.NewResult("delete-all", outcome), err)
		}),
	}

	// CountCmd queries number of users.
	CountCmd = ishell.Cmd{
		Name:    "count",
		Aliases: []string{"n"},
		Help:    "",
		Func: sh.MustBeOpened(func(c *ishell.Context, client *fpm.Client) {
			count, outcome, err := client.QueryUserCount()
			r := sh.NewResult("count", outcome)
			if outcome.OK() {
				r.WithCount(count)
			}
			sh.PrintResult(c, r, err)
		}),
	}

	// PermCmd queries permission of a user.
	PermCmd = ishell.Cmd{
		Name:    "perm",
		Aliases: []string{"p"},
		Help:    "UID",
		Func: sh.MustBeOpened(func(c *ishell.Context, client *fpm.Client) {
			uid, ok := userArg(c)
			if !ok {
				return
			}
			perm, outcome, err := client.QueryPermission(uid)
			r := sh.NewResult("perm", outcome).WithUserID(uid)
			if outcome.OK() {
				r.WithPermission(perm)
			}
			sh.PrintResult(c, r, err)
		}),
	}

	// RawCmd sends an arbitrary frame.
	RawCmd = ishell.Cmd{
		Name: "raw",
		Help: "CMD P1 P2 P3",
		Func: sh.MustBeOpened(func(c *ishell.Context, client *fpm.Client) {
			if len(c.Args) < 4 {
				c.Err(fmt.Errorf("CMD P1 P2 P3 required"))
				return
			}
			var params [4]byte
			for n, name := range []string{"CMD", "P1", "P2", "P3"} {
				val, err := ParseByte(name, c.Args[n])
				if err != nil {
					c.Err(err)
					return
				}
				params[n] = val
			}
			frame := fpm.Encode(params[0], params[1], params[2], params[3])
			raw, err := client.RoundTrip(frame[:])
			if err != nil {
				sh.PrintResult(c, nil, err)
				return
			}
			outcome := fpm.MalformedOutcome
			if resp, err := fpm.Decode(raw); err == nil {
				outcome = fpm.ReplyOutcome(params[0], resp)
			}
			r := sh.NewResult("raw", outcome)
			r.Raw = fmt.Sprintf("% X", raw)
			sh.PrintResult(c, r, nil)
		}),
	}
)

func init() {
	sh.AddCmds(
		&EnrollCmd,
		&VerifyCmd,
		&Verify1Cmd,
		&DeleteCmd,
		&DeleteAllCmd,
		&CountCmd,
		&PermCmd,
		&RawCmd,
	)
}
