package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/fpm.go/pkg/comm/mqtt"
	"github.com/robotalks/fpm.go/pkg/env"
	"github.com/robotalks/fpm.go/pkg/fpm"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *Conn
}

// Conn is an opened module.
type Conn struct {
	Port   string
	RW     io.ReadWriteCloser
	Client *fpm.Client
}

// Result is the printed result of a command.
type Result struct {
	Command    string      `json:"command"`
	Outcome    fpm.Outcome `json:"-"`
	Status     string      `json:"status"`
	Code       byte        `json:"code"`
	Message    string      `json:"message"`
	UserID     *int        `json:"user_id,omitempty"`
	Permission *int        `json:"permission,omitempty"`
	Count      *int        `json:"count,omitempty"`
	Raw        string      `json:"raw,omitempty"`
}

const (
	shellKey       = "$shell"
	closedPrompt   = "[none] > "
	discoverPeriod = 2 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&BridgeCmd,
		&OpenCmd,
		&CloseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpened wraps command func requires an opened module.
func MustBeOpened(fn func(c *ishell.Context, client *fpm.Client)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		if s.Conn == nil {
			c.Err(fmt.Errorf("not opened"))
			return
		}
		fn(c, s.Conn.Client)
	}
}

// NewResult creates a Result from an outcome.
func NewResult(command string, outcome fpm.Outcome) *Result {
	return &Result{
		Command: command,
		Outcome: outcome,
		Status:  outcome.Kind.String(),
		Code:    outcome.Code,
		Message: outcome.String(),
	}
}

// WithUserID sets UserID.
func (r *Result) WithUserID(uid fpm.UserID) *Result {
	val := int(uid)
	r.UserID = &val
	return r
}

// WithPermission sets Permission.
func (r *Result) WithPermission(perm fpm.Permission) *Result {
	val := int(perm)
	r.Permission = &val
	return r
}

// WithCount sets Count.
func (r *Result) WithCount(count int) *Result {
	r.Count = &count
	return r
}

// String formats the result for display.
func (r *Result) String() string {
	var b strings.Builder
	b.WriteString(r.Message)
	if r.UserID != nil {
		fmt.Fprintf(&b, " user=%d", *r.UserID)
	}
	if r.Permission != nil {
		fmt.Fprintf(&b, " permission=%d", *r.Permission)
	}
	if r.Count != nil {
		fmt.Fprintf(&b, " count=%d", *r.Count)
	}
	if r.Raw != "" {
		fmt.Fprintf(&b, " [%s]", r.Raw)
	}
	return b.String()
}

// PrintResult prints a command result, or the error.
func PrintResult(c *ishell.Context, r *Result, err error) error {
	if err != nil {
		c.Err(err)
		return err
	}
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(r)
		if err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	c.Println(r.String())
	return nil
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// DiscoverBridges lists bridges announced on the configured broker.
func (s *Shell) DiscoverBridges() ([]mqtt.BridgeInfo, error) {
	return mqtt.Discover(context.TODO(), s.Config.MQTTURL, discoverPeriod)
}

// SelectBridge discovers bridges and asks for a choice.
func (s *Shell) SelectBridge(filter func(mqtt.BridgeInfo) bool) (*mqtt.BridgeInfo, error) {
	infoList, err := s.DiscoverBridges()
	if err != nil {
		return nil, err
	}
	if filter != nil {
		items := make([]mqtt.BridgeInfo, 0, len(infoList))
		for _, info := range infoList {
			if filter(info) {
				items = append(items, info)
			}
		}
		infoList = items
	}
	if len(infoList) == 0 {
		return nil, nil
	}
	var index int
	if len(infoList) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 bridges discovered in non-interactive mode")
		}
		items := make([]string, len(infoList))
		for n, info := range infoList {
			items[n] = FormatInfo(info)
		}
		index = s.Shell.MultiChoice(items, "Which one to open?")
	}
	return &infoList[index], nil
}

// BridgePort returns the port URL of a bridge on the configured broker.
func (s *Shell) BridgePort(id string) string {
	return strings.TrimSuffix(s.Config.MQTTURL, "/") + "/" + id
}

// FormatInfo prints BridgeInfo into friendly string for display.
func FormatInfo(info mqtt.BridgeInfo) string {
	str := info.ID
	if info.Description != "" {
		str += ": " + info.Description
	}
	if info.Device != "" {
		str += " (" + info.Device + ")"
	}
	return str
}

// Open opens the module on port, closing the current one.
func (s *Shell) Open(port string) error {
	conf := *s.Config
	conf.Port = port
	rw, err := conf.Open()
	if err != nil {
		return err
	}
	s.Close()
	s.Conn = &Conn{Port: port, RW: rw, Client: conf.NewClient(rw)}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", port))
	return nil
}

// Close closes current module.
func (s *Shell) Close() {
	if s.Conn != nil {
		if err := s.Conn.RW.Close(); err != nil {
			glog.Warningf("close %s: %v", s.Conn.Port, err)
		}
		s.Conn = nil
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen && s.Config.Port != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.Port)
		}
		if err := s.Open(s.Config.Port); err != nil {
			if !s.Interactive {
				glog.Exitf("open %q failed: %v", s.Config.Port, err)
			}
			s.Shell.Printf("open %q failed: %v\n", s.Config.Port, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exitln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exitln("command expected")
}

var (
	// DiscoverCmd discovers bridges.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "list bridges on the MQTT broker",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			infoList, err := s.DiscoverBridges()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(infoList) == 0 {
					// in case infoList is nil, make it empty slice.
					infoList = []mqtt.BridgeInfo{}
				}
				out, err := json.Marshal(infoList)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			if len(infoList) == 0 {
				c.Println("No bridges found")
				return
			}
			for _, info := range infoList {
				c.Println(FormatInfo(info))
			}
		},
	}

	// BridgeCmd opens a module through a bridge.
	BridgeCmd = ishell.Cmd{
		Name:    "bridge",
		Aliases: []string{"b"},
		Help:    "[ID]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			id := ""
			if len(c.Args) > 0 {
				id = c.Args[0]
			} else {
				info, err := s.SelectBridge(nil)
				if err != nil {
					c.Err(err)
					return
				}
				if info == nil {
					c.Err(fmt.Errorf("no bridge discovered"))
					return
				}
				id = info.ID
			}
			if err := s.Open(s.BridgePort(id)); err != nil {
				c.Err(err)
			}
		},
	}

	// OpenCmd opens a module.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[PORT]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			port := s.Config.Port
			if len(c.Args) > 0 {
				port = c.Args[0]
			}
			if err := s.Open(port); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes current module.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	conf, err := env.Load()
	if err != nil {
		glog.Exitln(err)
	}
	New(conf).WithAutoOpen(true).Run(flag.Args()...)
}
