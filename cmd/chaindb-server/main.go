/*
Copyright (C) 2024  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/dc0d/onexit"

	"github.com/wpdas/chaindb/internal/api"
	"github.com/wpdas/chaindb/internal/config"
)

func main() {
	fmt.Print(`chaindb Copyright (C) 2024
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	settings := config.Default
	settings.RegisterFlags(flag.CommandLine)
	flag.Parse()

	level := slog.LevelInfo
	if settings.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := os.MkdirAll(settings.DataDir, 0750); err != nil {
		slog.Error("chaindb: cannot create data directory", "dir", settings.DataDir, "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    settings.Bind,
		Handler: api.NewServer(settings.DataDir).Handler(),
	}

	onexit.Register(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("chaindb: error during shutdown", "error", err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		onexit.Exit(0)
	}()

	slog.Info("chaindb: listening", "bind", settings.Bind, "data_dir", settings.DataDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("chaindb: server error", "error", err)
		os.Exit(1)
	}
}
