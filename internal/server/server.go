/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package server exposes rendering and history over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"postgen/internal/history"
	applog "postgen/internal/log"
	"postgen/internal/render"
	"postgen/internal/settings"
	"postgen/internal/telemetry"
	"postgen/internal/version"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// HistoryStore is the subset of *history.Store the API needs.
type HistoryStore interface {
	Add(ctx context.Context, text string, s settings.Settings) (history.Item, error)
	List(ctx context.Context) ([]history.Item, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Server holds the dependencies of the HTTP handlers. History and Telemetry
// may be nil.
type Server struct {
	Renderer  *render.Renderer
	History   HistoryStore
	Telemetry *telemetry.Client
	// Defaults provides the settings a request starts from; nil means settings.Defaults.
	Defaults func() settings.Settings
	// Now is used for download filenames; nil means time.Now.
	Now func() time.Time
}

// RenderRequest is the JSON body of POST /api/render. Settings fields that are
// omitted keep their default.
type RenderRequest struct {
	Text     string          `json:"text"`
	Settings json.RawMessage `json:"settings,omitempty"`
	Format   string          `json:"format,omitempty"` // png (default) | pdf
	Preview  bool            `json:"preview,omitempty"`
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	// Health endpoints
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(version.String()))
	})
	mux.HandleFunc("POST /api/render", s.handleRender)
	mux.HandleFunc("GET /api/history", s.handleHistoryList)
	mux.HandleFunc("DELETE /api/history", s.handleHistoryClear)
	mux.HandleFunc("DELETE /api/history/{id}", s.handleHistoryRemove)
	return withRequestLog(mux)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.History != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.History.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) defaults() settings.Settings {
	if s.Defaults != nil {
		return s.Defaults()
	}
	return settings.Defaults()
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	l := applog.WithOperation(applog.WithComponent("server"), "render")
	var req RenderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	st := s.defaults()
	if len(bytes.TrimSpace(req.Settings)) > 0 {
		merged, err := settings.MergeJSON(st, req.Settings)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid settings: %w", err))
			return
		}
		st = merged
	}
	st = settings.Sanitize(st)
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = "png"
	}
	if format != "png" && format != "pdf" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", req.Format))
		return
	}
	if req.Preview && format != "png" {
		writeError(w, http.StatusBadRequest, errors.New("preview is only available as png"))
		return
	}

	start := time.Now()
	var (
		data []byte
		err  error
	)
	switch {
	case req.Preview:
		img, perr := s.Renderer.Preview(r.Context(), req.Text, st)
		if perr == nil {
			data, err = render.Encode(img)
		} else {
			err = perr
		}
	case format == "pdf":
		data, err = s.Renderer.ExportPDF(r.Context(), req.Text, st)
	default:
		data, err = s.Renderer.Export(r.Context(), req.Text, st)
	}
	if err != nil {
		l.Error("render failed", slog.Any("err", err))
		writeError(w, statusFor(err), err)
		return
	}

	if s.History != nil && !req.Preview && strings.TrimSpace(req.Text) != "" {
		if _, herr := s.History.Add(r.Context(), req.Text, st); herr != nil {
			l.Warn("history not recorded", slog.Any("err", herr))
		}
	}
	s.Telemetry.Event("render", map[string]any{
		"format":      format,
		"preview":     req.Preview,
		"category":    string(st.Category),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	ctype := "image/png"
	if format == "pdf" {
		ctype = "application/pdf"
	}
	w.Header().Set("Content-Type", ctype)
	if !req.Preview {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", render.TimestampFilename("post", format, s.now())))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, render.ErrLogoUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, render.ErrSurfaceUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

var errHistoryDisabled = errors.New("history disabled")

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusServiceUnavailable, errHistoryDisabled)
		return
	}
	items, err := s.History.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusServiceUnavailable, errHistoryDisabled)
		return
	}
	if err := s.History.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistoryRemove(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusServiceUnavailable, errHistoryDisabled)
		return
	}
	err := s.History.Remove(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, history.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListenAndServe serves h on addr until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	l := applog.WithComponent("server")
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		l.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		l.Info("shutting down")
		if err := srv.Shutdown(shCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// --- Helpers: logging and JSON ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		applog.WithComponent("server").Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
