package control

import (
	"fmt"
	"net"
)

// Client sends playback commands to a running producer over its control
// socket. Client is safe for sequential use; callers needing concurrent
// sends must serialize externally.
type Client struct {
	conn net.Conn
}

// Dial connects to the producer's control socket.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Send transmits one command.
func (c *Client) Send(cmd Command) error {
	return WriteMessage(c.conn, cmd)
}

// Load asks the producer to load source, seeking to startMs and autoplaying
// when requested.
func (c *Client) Load(source string, startMs int64, autoplay bool) error {
	return c.Send(Command{Type: CmdLoad, Source: source, PositionMs: startMs, Autoplay: autoplay})
}

// Play resumes paused playback.
func (c *Client) Play() error { return c.Send(Command{Type: CmdPlay}) }

// Pause freezes playback at the current position.
func (c *Client) Pause() error { return c.Send(Command{Type: CmdPause}) }

// Seek jumps to posMs (best effort).
func (c *Client) Seek(posMs int64) error {
	return c.Send(Command{Type: CmdSeek, PositionMs: posMs})
}

// SetRate changes the playback rate.
func (c *Client) SetRate(rate float64) error {
	return c.Send(Command{Type: CmdSetRate, Rate: rate})
}

// SetVolume changes the volume.
func (c *Client) SetVolume(volume float64) error {
	return c.Send(Command{Type: CmdSetVolume, Volume: volume})
}

// Stop unloads the current video.
func (c *Client) Stop() error { return c.Send(Command{Type: CmdStop}) }

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
