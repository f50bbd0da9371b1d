package audio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	socketType    = "unix"
	resultSuccess = "success"
	dialInterval  = 200 * time.Millisecond
)

var (
	// ErrCommandFailed reports mpv answering with something other than "success".
	ErrCommandFailed = errors.New("mpv command failed")
	// ErrDisconnected reports a request made while no mpv connection is open.
	ErrDisconnected = errors.New("not connected to mpv")
)

// commandPayload is one request line on the mpv JSON IPC socket.
type commandPayload struct {
	Command   []interface{} `json:"command"`
	RequestID int64         `json:"request_id"`
}

// message is any line mpv sends back: a reply (request_id set) or an event.
type message struct {
	Err       string          `json:"error"`
	RequestID int64           `json:"request_id"`
	Event     string          `json:"event"`
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	Reason    string          `json:"reason"`
	FileError string          `json:"file_error"`
}

// ipcConn correlates requests and replies over one mpv socket connection
// and forwards unsolicited events.
type ipcConn struct {
	conn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan message
	closed  bool
	err     error

	events chan message
	done   chan struct{}
}

// dialIPC connects to socketPath, retrying until ctx ends. mpv takes a
// moment to create the socket after starting.
func dialIPC(ctx context.Context, socketPath string) (*ipcConn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, socketType, socketPath)
		if err == nil {
			c := &ipcConn{
				conn:    conn,
				pending: make(map[int64]chan message),
				events:  make(chan message, 64),
				done:    make(chan struct{}),
			}
			go c.readLoop()
			return c, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("could not connect to mpv socket %s: %w", socketPath, err)
		case <-time.After(dialInterval):
		}
	}
}

// request sends a command and waits for its reply. When ctx ends first the
// waiter is abandoned and the late reply is discarded.
func (c *ipcConn) request(ctx context.Context, args ...interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	c.nextID++
	id := c.nextID
	reply := make(chan message, 1)
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	payload, err := json.Marshal(commandPayload{Command: args, RequestID: id})
	if err != nil {
		return nil, err
	}
	payload = append(payload, '\n')

	c.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	_, err = c.conn.Write(payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write %v: %w", args[0], err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("%w: connection closed during %v", ErrDisconnected, args[0])
	case res := <-reply:
		if res.Err != resultSuccess {
			return nil, fmt.Errorf("%w: %v: %s", ErrCommandFailed, args[0], res.Err)
		}
		return res.Data, nil
	}
}

func (c *ipcConn) readLoop() {
	defer close(c.events)

	reader := bufio.NewReader(c.conn)
	var readErr error
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 1 {
			var msg message
			if jsonErr := json.Unmarshal(line, &msg); jsonErr == nil {
				c.dispatch(msg)
			}
		}
		if err != nil {
			readErr = err
			break
		}
	}

	c.mu.Lock()
	c.closed = true
	c.err = readErr
	c.mu.Unlock()
	close(c.done)
}

func (c *ipcConn) dispatch(msg message) {
	if msg.Event != "" {
		select {
		case c.events <- msg:
		case <-time.After(time.Second):
			// consumer stalled; property updates are superseded by the next one
		}
		return
	}
	if msg.RequestID == 0 {
		return
	}
	c.mu.Lock()
	reply, ok := c.pending[msg.RequestID]
	c.mu.Unlock()
	if ok {
		reply <- msg
	}
}

func (c *ipcConn) Close() error {
	return c.conn.Close()
}
