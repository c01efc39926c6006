package hub

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// Client attaches to a hub server over its unix socket.
//
// Publish shares one connection; Subscribe dials a dedicated connection per
// subscription because the server streams message frames on it.
type Client struct {
	socketPath string
	mu         sync.Mutex
	conn       net.Conn
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Connect establishes the publishing connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("hub connect: %w", err)
	}
	c.conn = conn
	return nil
}

// Close closes the publishing connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Publish posts a payload on a topic. Fire-and-forget: the server sends no
// acknowledgement.
func (c *Client) Publish(topic string, payload []byte) error {
	if err := c.Connect(); err != nil {
		return err
	}

	body, err := EncodeCommand(CmdPublish, topic, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("hub publish: connection closed")
	}
	if err := c.writeFrameLocked(body); err != nil {
		// Drop the broken connection so the next publish redials.
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("hub publish: %w", err)
	}
	return nil
}

func (c *Client) writeFrameLocked(body []byte) error {
	return writeFrame(c.conn, body)
}

// Subscription is one streaming subscription over its own connection.
type Subscription struct {
	conn  net.Conn
	topic string
}

// DialSubscription dials a dedicated connection and registers on the topic.
// The server streams message frames on this connection from then on.
func DialSubscription(socketPath, topic string) (*Subscription, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("hub subscribe: %w", err)
	}

	body, err := EncodeCommand(CmdSubscribe, topic, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := writeFrame(conn, body); err != nil {
		conn.Close()
		return nil, fmt.Errorf("hub subscribe: %w", err)
	}
	return &Subscription{conn: conn, topic: topic}, nil
}

// Run calls fn for every streamed message until the connection closes.
// It blocks; Close from another goroutine stops it. A close (local or
// remote) returns nil.
func (s *Subscription) Run(fn func(payload []byte)) error {
	for {
		frame, err := readFrame(s.conn)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		msgTopic, payload, err := DecodeMessage(frame)
		if err != nil {
			return err
		}
		if msgTopic != s.topic {
			continue
		}
		fn(payload)
	}
}

func (s *Subscription) Close() error {
	return s.conn.Close()
}
