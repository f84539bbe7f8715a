/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postgen/internal/config"
	"postgen/internal/crash"
	applog "postgen/internal/log"
	"postgen/internal/telemetry"
	"postgen/internal/version"
)

func usage() {
	fmt.Println("postgen: text post renderer")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  postgen version|-v|--version                 Show version")
	fmt.Println("  postgen render [flags] <text>|-              Render one post (- reads stdin)")
	fmt.Println("  postgen batch [flags] <pattern>              Render every file matching a ** glob")
	fmt.Println("  postgen history list|remove <id>|clear       Inspect or prune the render history")
	fmt.Println("  postgen settings show|reset|import <file>    Manage the saved post settings")
	fmt.Println("  postgen config show|dsn <dsn>                Show config, store the postgres DSN in the keychain")
	fmt.Println("  postgen serve [-addr :8080]                  Serve the HTTP API")
}

func main() {
	// initialize structured logging using environment defaults
	applog.Init(applog.FromEnv())
	info := crash.Info{}
	defer crash.Recover(&info)

	cfg, dsn, err := config.Load()
	if err != nil {
		applog.WithComponent("cli").Warn("config not loaded, using defaults", slog.Any("err", err))
	}
	applog.Init(cfg.Logging.LogOptions())
	telemetry.NewDefault(telemetry.Config{
		OptIn:     cfg.Telemetry.OptIn,
		EventsURL: cfg.Telemetry.EventsURL,
		CrashURL:  cfg.Telemetry.CrashURL,
		Timeout:   cfg.Telemetry.Timeout(),
		RetryMax:  2,
	})
	l := applog.WithComponent("cli")

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	info.Command = args[1]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a := newApp(cfg, dsn)
	defer a.close()

	var code int
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("postgen")
		fmt.Println(version.String())
	case "render":
		code = a.cmdRender(ctx, args[2:], &info)
	case "batch":
		code = a.cmdBatch(ctx, args[2:])
	case "history":
		code = a.cmdHistory(ctx, args[2:])
	case "settings":
		code = a.cmdSettings(args[2:])
	case "config":
		code = a.cmdConfig(args[2:])
	case "serve":
		code = a.cmdServe(ctx, args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Println("unknown command:", args[1])
		usage()
		code = 2
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	telemetry.Default().Flush(flushCtx)
	cancel()
	if code != 0 {
		a.close()
		os.Exit(code)
	}
}
