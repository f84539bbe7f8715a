/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestClient_UnreachableEndpointsDoNotBlock(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
	})
	defer c.Close()

	c.Event("render", map[string]any{"format": "png"})
	c.UploadCrash([]byte("panic"))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c.Flush(ctx)
	if ctx.Err() != nil {
		t.Fatalf("flush did not finish after failed sends")
	}
}

func TestClient_GivesUpAfterRetryMax(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{OptIn: true, EventsURL: srv.URL, Timeout: time.Second, RetryMax: 1})
	defer c.Close()
	c.Event("batch", map[string]any{"files": 2})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Flush(ctx)
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestFlush_NilClient(t *testing.T) {
	var c *Client
	c.Flush(context.Background())
	c.Event("x", nil)
	c.UploadCrash(nil)
}

func TestClient_FlushAfterCloseDoesNotWaitForQueue(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(Config{OptIn: true, EventsURL: srv.URL, Timeout: 200 * time.Millisecond})
	for i := 0; i < 5; i++ {
		c.Event("render", nil)
	}
	time.Sleep(50 * time.Millisecond)
	c.Close()
	c.Event("late", nil)
	c.UploadCrash([]byte("late"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	c.Flush(ctx)
	if ctx.Err() != nil {
		t.Fatalf("flush waited for discarded events")
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("flush took %v", d)
	}
}

func TestClient_ConcurrentEventsAndFlush(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: true, EventsURL: srv.URL, Timeout: time.Second})
	defer c.Close()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Event("render", map[string]any{"preview": true})
		}()
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			c.Flush(ctx)
		}()
	}
	wg.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)
	if got := atomic.LoadInt32(&hits); got != 8 {
		t.Fatalf("expected 8 events posted, got %d", got)
	}
}
