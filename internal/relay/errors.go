package relay

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/coder/websocket"
)

// isCloseErr reports whether err is an ordinary end of stream rather than a
// transport failure worth surfacing.
func isCloseErr(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, context.Canceled):
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}
