/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in anonymous render events and crash reports.
// Nothing is sent unless OptIn is set and the matching URL is configured.
// Event properties must never carry post text.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	applog "postgen/internal/log"
	"postgen/internal/version"
)

const envPrefix = "POSTGEN_TELEMETRY_"

// Config controls the client. FromEnv reads it from
// POSTGEN_TELEMETRY_{OPT_IN,EVENTS_URL,CRASH_URL,TIMEOUT_MS,DEBUG}.
type Config struct {
	OptIn     bool
	EventsURL string
	CrashURL  string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// RetryMax is the number of retries after a failed attempt.
	RetryMax     int
	DebugLogging bool
}

func FromEnv() Config {
	env := func(k string) string { return strings.TrimSpace(os.Getenv(envPrefix + k)) }
	cfg := Config{
		OptIn:        parseBool(env("OPT_IN")),
		EventsURL:    env("EVENTS_URL"),
		CrashURL:     env("CRASH_URL"),
		Timeout:      1500 * time.Millisecond,
		RetryMax:     2,
		DebugLogging: env("DEBUG") != "",
	}
	if ms, err := strconv.Atoi(env("TIMEOUT_MS")); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Client queues events and posts them from a single goroutine. A full queue
// drops events; sending never blocks the caller.
type Client struct {
	cfg   Config
	log   *slog.Logger
	http  *retryablehttp.Client
	queue chan map[string]any
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	pending int           // queued events plus in-flight posts
	idle    chan struct{} // closed while pending == 0
}

var (
	defaultClient *Client
	defaultOnce   sync.Once
)

// InitDefault installs a client built from the environment unless NewDefault ran first.
func InitDefault() {
	defaultOnce.Do(func() { defaultClient = New(FromEnv()) })
}

// NewDefault installs a client built from cfg as the package default.
func NewDefault(cfg Config) {
	defaultOnce.Do(func() {})
	defaultClient = New(cfg)
}

// Default returns the package-level client.
func Default() *Client {
	InitDefault()
	return defaultClient
}

// New starts a client.
func New(cfg Config) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = max(cfg.RetryMax, 0)
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil
	idle := make(chan struct{})
	close(idle)
	c := &Client{
		cfg:   cfg,
		log:   applog.WithComponent("telemetry"),
		http:  rc,
		queue: make(chan map[string]any, 64),
		done:  make(chan struct{}),
		idle:  idle,
	}
	go c.run()
	return c
}

// Enabled reports whether events are sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether the default client sends events.
func Enabled() bool { return Default().Enabled() }

// Event enqueues a named event. props are shallow-copied into the payload
// next to name, ts, version, os and arch.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := make(map[string]any, len(props)+5)
	for k, v := range props {
		payload[k] = v
	}
	payload["name"] = name
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload["version"] = version.String()
	payload["os"] = runtime.GOOS
	payload["arch"] = runtime.GOARCH

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.queue <- payload:
		c.beginLocked()
	default:
		c.debug("event dropped, queue full", slog.String("name", name))
	}
}

func (c *Client) beginLocked() {
	if c.pending == 0 {
		c.idle = make(chan struct{})
	}
	c.pending++
}

func (c *Client) end() {
	c.mu.Lock()
	c.pending--
	if c.pending == 0 {
		close(c.idle)
	}
	c.mu.Unlock()
}

// Event sends through the default client.
func Event(name string, props map[string]any) { Default().Event(name, props) }

// Flush waits until queued events and crash uploads are sent or ctx is done.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
	case <-ctx.Done():
	}
}

// Close stops the sender. Queued events are discarded; a post already in
// flight finishes. Later events and crash uploads are ignored.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *Client) run() {
	for {
		select {
		case <-c.done:
			c.drain()
			return
		default:
		}
		select {
		case <-c.done:
			c.drain()
			return
		case payload := <-c.queue:
			if buf, err := json.Marshal(payload); err == nil {
				c.post(c.cfg.EventsURL, "application/json", buf)
			}
			c.end()
		}
	}
}

// drain discards what is left in the queue. Nothing is enqueued once done is
// closed, so an empty queue stays empty.
func (c *Client) drain() {
	for {
		select {
		case <-c.queue:
			c.end()
		default:
			return
		}
	}
}

func (c *Client) post(url, contentType string, body []byte) {
	req, err := retryablehttp.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.debug("telemetry request invalid", slog.Any("err", err))
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		c.debug("telemetry post failed", slog.String("url", url), slog.Any("err", err))
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	c.debug("telemetry posted", slog.String("url", url), slog.Int("status", resp.StatusCode))
}

func (c *Client) debug(msg string, attrs ...any) {
	if c.cfg.DebugLogging {
		c.log.Debug(msg, attrs...)
	}
}

// UploadCrash posts a plain-text crash report in the background.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	b := append([]byte(nil), report...)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.beginLocked()
	c.mu.Unlock()
	go func() {
		defer c.end()
		c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b)
	}()
}

// UploadCrash uploads through the default client.
func UploadCrash(report []byte) { Default().UploadCrash(report) }
