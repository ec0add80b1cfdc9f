// Command zebra-client is a terminal peer for the relay. One side runs
// -create and shares the printed token, the other joins with -token. Lines
// typed on stdin are sent to the peer; frames from the peer are printed.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/matst80/zebra-signal/internal/obs"
	"github.com/matst80/zebra-signal/internal/proto"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	level := "warn"
	if cfg.Debug {
		level = "debug"
	}
	obs.Setup(level, "console")
	defer obs.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		obs.Error("client.exit", obs.Fields{"err": err.Error()})
		obs.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	token := cfg.Token
	if cfg.Create {
		s, err := createSession(ctx, cfg)
		if err != nil {
			return err
		}
		token = strconv.FormatUint(uint64(s.Token), 10)
		fmt.Fprintf(out, "session %s expires %s\n", token, time.Unix(int64(s.Expires), 0).Format(time.TimeOnly))
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	c, _, err := websocket.Dial(dialCtx, cfg.socketURL(token), nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.CloseNow()
	obs.Debug("client.connected", obs.Fields{"token": token})
	return pump(ctx, c, in, out, cfg.Binary)
}

func createSession(ctx context.Context, cfg Config) (proto.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Server+"/session", nil)
	if err != nil {
		return proto.Session{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return proto.Session{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return proto.Session{}, fmt.Errorf("create session: %s: %s", resp.Status, body)
	}
	var s proto.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return proto.Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// pump copies stdin lines to c and frames from c to out until either side
// finishes. A normal close from the relay is not an error.
func pump(ctx context.Context, c *websocket.Conn, in io.Reader, out io.Writer, binary bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The scanner cannot be interrupted, so it lives outside the group.
	lines := make(chan []byte)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			b := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	typ := websocket.MessageText
	if binary {
		typ = websocket.MessageBinary
	}

	var closing atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case b, ok := <-lines:
				if !ok {
					obs.Debug("client.stdin.eof", obs.Fields{})
					closing.Store(true)
					if err := c.Close(websocket.StatusNormalClosure, ""); err != nil {
						obs.Debug("client.close", obs.Fields{"err": err.Error()})
					}
					return nil
				}
				if err := c.Write(gctx, typ, b); err != nil {
					return err
				}
			}
		}
	})
	g.Go(func() error {
		defer cancel()
		for {
			_, data, err := c.Read(gctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return nil
				case websocket.StatusPolicyViolation:
					return errors.New("session not found")
				}
				if closing.Load() || gctx.Err() != nil {
					return nil
				}
				return err
			}
			if _, err := fmt.Fprintf(out, "%s\n", data); err != nil {
				return err
			}
		}
	})
	return g.Wait()
}
