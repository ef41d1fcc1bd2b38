package zenithnet

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/keisuke0821/elenc/internal/elerrors"
)

// Client holds a single persistent connection to a Server and issues
// repeated zenith queries over it.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial connects to addr and returns a Client ready to query it.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", elerrors.ErrTransport, addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn), timeout: timeout}, nil
}

// GetZenith sends one query and returns the parsed angle in degrees.
func (c *Client) GetZenith() (float64, error) {
	_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := fmt.Fprint(c.conn, Query); err != nil {
		return 0, fmt.Errorf("%w: write query: %v", elerrors.ErrTransport, err)
	}
	buf := make([]byte, 64)
	n, err := c.reader.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %v", elerrors.ErrTransport, err)
	}
	text := strings.TrimSpace(string(buf[:n]))
	z, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse response %q: %v", elerrors.ErrTransport, text, err)
	}
	return z, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }
