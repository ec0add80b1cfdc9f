package relay

import (
	"context"
	"io"
)

// MessageType distinguishes text from binary frames so message-oriented
// transports keep their framing across the relay.
type MessageType int

const (
	MessageBinary MessageType = iota
	MessageText
)

func (t MessageType) String() string {
	if t == MessageText {
		return "text"
	}
	return "binary"
}

// Frame is one unit read from a Conn. Stream transports produce arbitrary
// chunks; message transports produce whole messages.
type Frame struct {
	Type MessageType
	Data []byte
}

// Conn is one side of a relay. ReadFrame and WriteFrame are called from
// different goroutines; Close may be called concurrently with both and must
// unblock them.
type Conn interface {
	ReadFrame(ctx context.Context) (Frame, error)
	WriteFrame(ctx context.Context, f Frame) error
	Close() error
}

const streamChunk = 32 * 1024

type streamConn struct {
	rwc io.ReadWriteCloser
	buf []byte
}

// Stream adapts a byte stream such as a net.Conn. Frames are read in chunks
// of up to 32 KiB and are always binary. ctx is not observed by the stream
// itself; the relay unblocks it by closing.
func Stream(rwc io.ReadWriteCloser) Conn {
	return &streamConn{rwc: rwc, buf: make([]byte, streamChunk)}
}

func (s *streamConn) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	n, err := s.rwc.Read(s.buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, s.buf[:n])
		return Frame{Type: MessageBinary, Data: data}, nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return Frame{}, err
}

func (s *streamConn) WriteFrame(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.rwc.Write(f.Data)
	return err
}

func (s *streamConn) Close() error { return s.rwc.Close() }
