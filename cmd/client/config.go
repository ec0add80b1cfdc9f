package main

import (
	"errors"
	"flag"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matst80/zebra-signal/internal/proto"
)

// Config holds client runtime configuration.
type Config struct {
	Server  string // base URL of the relay, http(s)://host:port
	Token   string
	Create  bool
	Binary  bool
	Debug   bool
	Timeout time.Duration
}

func parseConfig(args []string) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("zebra-client", flag.ContinueOnError)
	fs.StringVar(&cfg.Server, "server", "http://127.0.0.1:8080", "relay base URL")
	fs.StringVar(&cfg.Token, "token", "", "join an existing session")
	fs.BoolVar(&cfg.Create, "create", false, "create a session, print its token and wait for a peer")
	fs.BoolVar(&cfg.Binary, "binary", false, "send stdin lines as binary frames")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	fs.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "timeout for the session request and websocket handshake")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.Create == (cfg.Token != "") {
		return cfg, errors.New("exactly one of -create or -token is required")
	}
	if cfg.Token != "" {
		if _, err := strconv.ParseUint(cfg.Token, 10, 32); err != nil {
			return cfg, errors.New("token must be a decimal 32-bit number")
		}
	}
	u, err := url.Parse(cfg.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return cfg, errors.New("server must be an http(s) URL")
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")
	return cfg, nil
}

// socketURL derives the websocket URL for token from the base URL.
func (c Config) socketURL(token string) string {
	u, _ := url.Parse(c.Server)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{proto.TokenParam: {token}}.Encode()
	return u.String()
}
