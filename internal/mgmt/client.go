// Package mgmt is a client for the edge's UDP management interface.
//
// Each request is a single line, "r <tag>[:1:<password>] <method>" for reads
// and "w ..." for writes. The edge answers with one JSON object per datagram,
// tagged with the request tag: a "begin", any number of "row"s, then "end",
// or a single "error".
package mgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	DefaultAddr     = "127.0.0.1:5644"
	DefaultPassword = "n2n"

	defaultReadTimeout  = 200 * time.Millisecond
	defaultDeadline     = 1500 * time.Millisecond
	defaultStopDeadline = 10 * time.Second
)

// ErrTimeout is returned when the edge did not answer a request at all.
var ErrTimeout = errors.New("management request timed out")

// RemoteError is an "error" packet from the edge, e.g. Code "badauth".
type RemoteError struct {
	Method string
	Code   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("management %s: %s", e.Method, e.Code)
}

// IsBadAuth reports whether err is the edge rejecting the password.
func IsBadAuth(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == "badauth"
}

type Client struct {
	addr         string
	password     string
	readTimeout  time.Duration
	deadline     time.Duration
	stopDeadline time.Duration
	tags         atomic.Uint32
	log          *slog.Logger
}

type Option func(*Client)

func WithAddr(addr string) Option {
	return func(c *Client) { c.addr = addr }
}

// WithPassword sets the management password. Empty means none configured.
func WithPassword(pw string) Option {
	return func(c *Client) { c.password = pw }
}

// WithTimeouts overrides the per-read timeout and the overall request deadline.
func WithTimeouts(read, overall time.Duration) Option {
	return func(c *Client) {
		c.readTimeout = read
		c.deadline = overall
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		addr:         DefaultAddr,
		readTimeout:  defaultReadTimeout,
		deadline:     defaultDeadline,
		stopDeadline: defaultStopDeadline,
		log:          slog.With("component", "mgmt"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FromExtraArgs derives client options from the edge's extra command line:
// "-t <port>" moves the management port and "--management-password <pw>"
// sets the password.
func FromExtraArgs(extra string) []Option {
	var opts []Option
	fields := strings.Fields(extra)
	for i := 0; i < len(fields)-1; i++ {
		switch fields[i] {
		case "-t":
			if port, err := strconv.Atoi(fields[i+1]); err == nil && port > 0 && port <= 65535 {
				opts = append(opts, WithAddr(net.JoinHostPort("127.0.0.1", fields[i+1])))
			}
		case "--management-password":
			opts = append(opts, WithPassword(fields[i+1]))
		}
	}
	return opts
}

// EdgeRow is one row of the "edges" method.
type EdgeRow struct {
	Mode     string `json:"mode"`
	IP4Addr  string `json:"ip4addr"`
	SockAddr string `json:"sockaddr"`
	Desc     string `json:"desc"`
	LastSeen uint64 `json:"last_seen"`
	// Older edges spell it without the underscore.
	LastSeenAlt uint64 `json:"lastseen"`
	Local       uint64 `json:"local"`
}

func (r EdgeRow) Seen() uint64 {
	if r.LastSeen != 0 {
		return r.LastSeen
	}
	return r.LastSeenAlt
}

// Timestamps is the single row of the "timestamps" method, in Unix seconds.
type Timestamps struct {
	StartTime uint64 `json:"start_time"`
	LastSuper uint64 `json:"last_super"`
	LastP2P   uint64 `json:"last_p2p"`
}

// Edges lists the peers the edge knows about. Rows that fail to decode are
// skipped.
func (c *Client) Edges(ctx context.Context) ([]EdgeRow, error) {
	raw, err := c.read(ctx, "edges")
	if err != nil {
		return nil, err
	}
	rows := make([]EdgeRow, 0, len(raw))
	for _, r := range raw {
		var row EdgeRow
		if err := json.Unmarshal(r, &row); err != nil {
			c.log.Debug("Skipping undecodable edges row.", "err", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Client) Timestamps(ctx context.Context) (Timestamps, error) {
	raw, err := c.read(ctx, "timestamps")
	if err != nil {
		return Timestamps{}, err
	}
	if len(raw) == 0 {
		return Timestamps{}, fmt.Errorf("management timestamps: no rows")
	}
	var ts Timestamps
	if err := json.Unmarshal(raw[len(raw)-1], &ts); err != nil {
		return Timestamps{}, fmt.Errorf("decode timestamps: %w", err)
	}
	return ts, nil
}

// Stop asks the edge to shut down. Writes always authenticate, with the
// default password when none is configured.
func (c *Client) Stop(ctx context.Context) error {
	pw := c.password
	if pw == "" {
		pw = DefaultPassword
	}
	_, err := c.do(ctx, "w", "stop", pw, c.stopDeadline)
	return err
}

// read performs a read request. Without a configured password a badauth
// answer is retried once with the default password.
func (c *Client) read(ctx context.Context, method string) ([]json.RawMessage, error) {
	rows, err := c.do(ctx, "r", method, c.password, c.deadline)
	if err != nil && c.password == "" && IsBadAuth(err) {
		c.log.Debug("Retrying with default management password.", "method", method)
		return c.do(ctx, "r", method, DefaultPassword, c.deadline)
	}
	return rows, err
}

type header struct {
	Tag   string `json:"_tag"`
	Type  string `json:"_type"`
	Error string `json:"error"`
}

func (c *Client) nextTag() string {
	return strconv.FormatUint(uint64(c.tags.Add(1)%1000), 10)
}

// Request renders one request line.
func Request(verb, tag, password, method string) string {
	opts := tag
	if password != "" {
		opts = tag + ":1:" + password
	}
	return verb + " " + opts + " " + method + "\n"
}

func (c *Client) do(ctx context.Context, verb, method, password string, deadline time.Duration) ([]json.RawMessage, error) {
	dst, err := net.ResolveUDPAddr("udp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("resolve management address: %w", err)
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("open management socket: %w", err)
	}
	defer pc.Close()

	tag := c.nextTag()
	if _, err := pc.WriteTo([]byte(Request(verb, tag, password, method)), dst); err != nil {
		return nil, fmt.Errorf("send management %s: %w", method, err)
	}

	end := time.Now().Add(deadline)
	if d, ok := ctx.Deadline(); ok && d.Before(end) {
		end = d
	}

	var (
		rows  []json.RawMessage
		began bool
		buf   = make([]byte, 65535)
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now := time.Now()
		if !now.Before(end) {
			break
		}
		readBy := now.Add(c.readTimeout)
		if readBy.After(end) {
			readBy = end
		}
		if err := pc.SetReadDeadline(readBy); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			if isQuiet(err) {
				break
			}
			return nil, fmt.Errorf("read management %s: %w", method, err)
		}

		pkt := bytes.TrimSpace(bytes.Trim(buf[:n], "\x00"))
		var h header
		if err := json.Unmarshal(pkt, &h); err != nil {
			continue
		}
		if h.Tag != tag {
			continue
		}
		switch h.Type {
		case "error":
			code := h.Error
			if code == "" {
				code = "unknown"
			}
			return nil, &RemoteError{Method: method, Code: code}
		case "begin":
			began = true
		case "row":
			began = true
			rows = append(rows, json.RawMessage(bytes.Clone(pkt)))
		case "end":
			return rows, nil
		}
	}
	if !began {
		return nil, fmt.Errorf("management %s: %w", method, ErrTimeout)
	}
	return rows, nil
}

// isQuiet reports read errors that only mean nothing arrived in time. A
// reset shows up on some platforms while the edge port is not bound yet.
func isQuiet(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}
