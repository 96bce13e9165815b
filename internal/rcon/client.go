package rcon

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.lazytran.dev/lazytran/internal/errs"
)

// listRE matches vanilla/Paper's "list" command response:
//
//	There are 2 of a max of 20 players online: alice, bob
//
// The trailing name list is optional (absent when online == 0).
var listRE = regexp.MustCompile(`(?i)There are (\d+) of a max of \d+ players online:?(.*)`)

const (
	connectTimeout = 3 * time.Second
	commandTimeout = 5 * time.Second
)

// Client is a configured RCON endpoint. Each Send dials a fresh connection
// and tears it down afterward — spec.md §4.3 requires a failed connection
// is never reused, and Minecraft's RCON implementation doesn't pipeline
// requests well enough to make a persistent connection worth the
// complexity.
type Client struct {
	Address  string
	Password string
}

// NewClient builds a Client for address (host:port) authenticating with
// password.
func NewClient(address, password string) *Client {
	return &Client{Address: address, Password: password}
}

// Send dials, authenticates, executes command, and closes the connection,
// returning the (possibly multi-packet, reassembled) response text.
func (c *Client) Send(command string) (string, error) {
	conn, err := dial(c.Address, c.Password)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.sendCommand(command)
}

// List issues the `list` command and extracts the online player count and
// (if present) usernames, per spec.md §4.4 step 4. The vanilla/Paper
// response line looks like:
//
//	There are 2 of a max of 20 players online: alice, bob
func (c *Client) List() (online int, names []string, err error) {
	resp, err := c.Send("list")
	if err != nil {
		return 0, nil, err
	}
	return parseListResponse(resp)
}

func parseListResponse(resp string) (int, []string, error) {
	m := listRE.FindStringSubmatch(resp)
	if m == nil {
		return 0, nil, errs.New(errs.KindMalformed, "parseListResponse", fmt.Errorf("unrecognized list response: %q", resp))
	}
	var online int
	fmt.Sscanf(m[1], "%d", &online)

	var names []string
	if len(m) > 2 && strings.TrimSpace(m[2]) != "" {
		for _, n := range strings.Split(m[2], ",") {
			n = strings.TrimSpace(n)
			if n != "" {
				names = append(names, n)
			}
		}
	}
	return online, names, nil
}

// conn is a single authenticated RCON connection, matching go-rcon's
// Conn: a background goroutine reads response packets into a channel, and
// every request is followed by a termination packet so fragmented
// responses can be reassembled without guessing a fixed read count.
type conn struct {
	nc       net.Conn
	mu       sync.Mutex
	packets  chan Packet
	closed   atomic.Bool
	nextID   int32
}

func dial(address, password string) (*conn, error) {
	nc, err := net.DialTimeout("tcp", address, connectTimeout)
	if err != nil {
		return nil, errs.New(errs.KindUnreachable, "rcon.dial", err)
	}

	c := &conn{nc: nc, packets: make(chan Packet)}
	c.start()

	if err := c.authenticate(password); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *conn) start() {
	go func() {
		for {
			p, err := c.readPacket()
			if err != nil {
				_ = c.Close()
				close(c.packets)
				return
			}
			c.packets <- p
		}
	}()
}

func (c *conn) authenticate(password string) error {
	req := c.newPacket(KindAuth, password)
	if err := c.writePacket(req); err != nil {
		return errs.New(errs.KindIO, "rcon.authenticate", err)
	}

	resp, err := c.readUntilTermination(req.ID)
	if err != nil {
		return errs.New(errs.KindIO, "rcon.authenticate", err)
	}
	// A -1 request id (or any id mismatch) means authentication failed
	// (spec.md §4.3).
	if len(resp) != 1 || resp[0].ID != req.ID || resp[0].ID == -1 {
		return errs.New(errs.KindAuthFailed, "rcon.authenticate", fmt.Errorf("rejected password"))
	}
	return nil
}

func (c *conn) sendCommand(command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return "", errs.New(errs.KindUnreachable, "rcon.sendCommand", fmt.Errorf("connection closed"))
	}

	req := c.newPacket(KindCommand, command)
	if err := c.writePacket(req); err != nil {
		_ = c.Close()
		return "", errs.New(errs.KindIO, "rcon.sendCommand", err)
	}

	resp, err := c.readUntilTermination(req.ID)
	if err != nil {
		_ = c.Close()
		return "", errs.New(errs.KindIO, "rcon.sendCommand", err)
	}

	var sb strings.Builder
	for _, p := range resp {
		sb.WriteString(p.Payload)
	}
	return sb.String(), nil
}

// readUntilTermination reads response packets until the termination
// packet's echo ("Unknown request 5") is observed, per spec.md §4.3 and
// grounded on go-rcon's readPackets fragmentation handling. The
// termination packet cannot be sent until the first response packet
// starts arriving, since vanilla servers process requests strictly
// sequentially.
func (c *conn) readUntilTermination(reqID int32) ([]Packet, error) {
	var resp []Packet
	sentTerm := false
	deadline := time.After(commandTimeout)

	for {
		select {
		case p, ok := <-c.packets:
			if !ok {
				return nil, fmt.Errorf("rcon: connection closed while reading response")
			}
			if !sentTerm {
				sentTerm = true
				term := c.newPacket(KindTermination, "")
				if err := c.writePacket(term); err != nil {
					return nil, err
				}
			}
			if p.Payload == terminalResponse {
				return resp, nil
			}
			resp = append(resp, p)
		case <-deadline:
			return nil, errs.New(errs.KindTimeout, "rcon.readUntilTermination", fmt.Errorf("timed out waiting for response to request %d", reqID))
		}
	}
}

func (c *conn) newPacket(kind Kind, payload string) Packet {
	id := atomic.AddInt32(&c.nextID, 1)
	return Packet{ID: id, Kind: kind, Payload: payload}
}

func (c *conn) writePacket(p Packet) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	_, err = c.nc.Write(data)
	return err
}

// readPacket reads one full RCON frame byte-by-byte, matching go-rcon's
// approach of reading until the minimum-length + NUL-pad terminator is
// observed, since RCON frames carry no out-of-band delimiter.
func (c *conn) readPacket() (Packet, error) {
	var data []byte
	buf := make([]byte, 1)
	for len(data) < 14 || data[len(data)-1] != 0 || data[len(data)-2] != 0 {
		if _, err := c.nc.Read(buf); err != nil {
			return Packet{}, err
		}
		data = append(data, buf[0])
	}
	return Unmarshal(data)
}

func (c *conn) Close() error {
	c.closed.Store(true)
	return c.nc.Close()
}
