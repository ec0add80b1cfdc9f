// Package relay forwards frames between two paired connections until one of
// them closes or the relay deadline passes.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matst80/zebra-signal/internal/obs"
	"golang.org/x/sync/errgroup"
)

// Cause reports which event ended a relay.
type Cause string

const (
	CauseFirstClosed  Cause = "first_closed"
	CauseSecondClosed Cause = "second_closed"
	CauseTimeout      Cause = "timeout"
	CauseShutdown     Cause = "shutdown"
)

// Direction counts what one forwarding leg moved.
type Direction struct {
	Frames int64
	Bytes  int64
}

// Result summarizes a finished relay.
type Result struct {
	Cause    Cause
	Err      error // read/write error that ended the relay, nil on clean close or timeout
	Forward  Direction
	Backward Direction
	Duration time.Duration
}

var errTimeout = errors.New("relay timeout")

type legError struct {
	cause Cause
	err   error
}

func (e *legError) Error() string { return string(e.cause) + ": " + e.err.Error() }
func (e *legError) Unwrap() error { return e.err }

// Run relays between first and second and blocks until the relay ends. Three
// tasks race: first→second, second→first, and a timer of timeout (disabled
// when timeout <= 0). Whichever finishes first cancels the others, and both
// connections are closed before Run returns. Cancelling ctx ends the relay
// with CauseShutdown.
func Run(ctx context.Context, first, second Conn, timeout time.Duration) Result {
	start := time.Now()
	var res Result

	g, gctx := errgroup.WithContext(ctx)
	// Forwarders are unblocked by closing the connections, never by ctx: a
	// websocket whose read context is cancelled is torn down with 1008
	// instead of a normal close.
	ioctx := context.WithoutCancel(gctx)
	g.Go(func() error { return forward(ioctx, first, second, &res.Forward, CauseFirstClosed, CauseSecondClosed) })
	g.Go(func() error { return forward(ioctx, second, first, &res.Backward, CauseSecondClosed, CauseFirstClosed) })
	g.Go(func() error {
		if timeout <= 0 {
			<-gctx.Done()
			return nil
		}
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-t.C:
			return errTimeout
		case <-gctx.Done():
			return nil
		}
	})

	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			var wg sync.WaitGroup
			wg.Add(2)
			go func() { defer wg.Done(); _ = first.Close() }()
			go func() { defer wg.Done(); _ = second.Close() }()
			wg.Wait()
		})
	}
	go func() {
		<-gctx.Done()
		closeBoth()
	}()

	err := g.Wait()
	closeBoth()

	var le *legError
	switch {
	case errors.Is(err, errTimeout):
		res.Cause = CauseTimeout
	case ctx.Err() != nil:
		res.Cause = CauseShutdown
	case errors.As(err, &le):
		res.Cause = le.cause
		if !isCloseErr(le.err) {
			res.Err = le.err
		}
	}
	res.Duration = time.Since(start)

	obs.RelayBytesTotal.WithLabelValues("forward").Add(float64(res.Forward.Bytes))
	obs.RelayBytesTotal.WithLabelValues("backward").Add(float64(res.Backward.Bytes))
	obs.RelayEndTotal.WithLabelValues(string(res.Cause)).Inc()
	obs.RelayDurationSeconds.Observe(res.Duration.Seconds())
	return res
}

// forward copies frames from src to dst. It only ever returns a non-nil
// error, so its completion always ends the relay. A failed read blames src,
// a failed write blames dst.
func forward(ctx context.Context, src, dst Conn, d *Direction, srcGone, dstGone Cause) error {
	for {
		f, err := src.ReadFrame(ctx)
		if err != nil {
			return &legError{cause: srcGone, err: err}
		}
		if err := dst.WriteFrame(ctx, f); err != nil {
			return &legError{cause: dstGone, err: err}
		}
		d.Frames++
		d.Bytes += int64(len(f.Data))
	}
}
