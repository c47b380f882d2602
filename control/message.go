// Package control implements the out-of-band command channel of the itk
// producer: length-prefixed JSON messages on a local socket, carrying the
// Load/Play/Pause/Seek/SetRate/SetVolume/Stop commands that drive the
// playback state machine.
package control

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxMessageSize bounds a single command payload. Commands are a few hundred
// bytes of JSON; anything larger is a protocol violation.
const maxMessageSize = 64 * 1024

// CommandType identifies a playback command.
type CommandType string

const (
	CmdLoad      CommandType = "load"
	CmdPlay      CommandType = "play"
	CmdPause     CommandType = "pause"
	CmdSeek      CommandType = "seek"
	CmdSetRate   CommandType = "set_rate"
	CmdSetVolume CommandType = "set_volume"
	CmdStop      CommandType = "stop"
)

// Command is one playback command. Fields beyond Type are populated per
// command: Source/PositionMs/Autoplay for load, PositionMs for seek, Rate
// for set_rate, Volume for set_volume. The source string is opaque here;
// resolving a streaming-site URL into a decodable one happens before the
// command is sent.
type Command struct {
	Type       CommandType `json:"type"`
	Source     string      `json:"source,omitempty"`
	PositionMs int64       `json:"position_ms,omitempty"`
	Autoplay   bool        `json:"autoplay,omitempty"`
	Rate       float64     `json:"rate,omitempty"`
	Volume     float64     `json:"volume,omitempty"`
}

// Validate checks command-specific required fields.
func (c Command) Validate() error {
	switch c.Type {
	case CmdLoad:
		if c.Source == "" {
			return fmt.Errorf("control: load command without source")
		}
	case CmdSetRate:
		if c.Rate <= 0 {
			return fmt.Errorf("control: set_rate with non-positive rate %v", c.Rate)
		}
	case CmdSetVolume:
		if c.Volume < 0 {
			return fmt.Errorf("control: set_volume with negative volume %v", c.Volume)
		}
	case CmdPlay, CmdPause, CmdSeek, CmdStop:
	default:
		return fmt.Errorf("control: unknown command type %q", c.Type)
	}
	return nil
}

// ReadMessage reads one command from the stream.
// Wire format: [length (uint32 big-endian)] [JSON payload].
func ReadMessage(r io.Reader) (Command, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Command{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > maxMessageSize {
		return Command{}, fmt.Errorf("control: message length %d out of range", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Command{}, fmt.Errorf("control: read message payload: %w", err)
	}

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("control: decode message: %w", err)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// WriteMessage writes one command to the stream as a single Write call so
// concurrent senders on the same connection cannot interleave frames.
func WriteMessage(w io.Writer, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("control: encode message: %w", err)
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	_, err = w.Write(buf)
	return err
}
