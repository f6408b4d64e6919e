package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/stringintech/mcp-conformance-tests/mockserver"
)

func main() {
	listen := pflag.String("listen", "127.0.0.1:5678", "Address to listen on")
	path := pflag.String("path", "/mcp", "HTTP path serving the JSON-RPC endpoint")
	logLevel := pflag.String("log-level", "info", "Log level (debug, info, warn, error)")
	pflag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --log-level: %v\n", err)
		os.Exit(2)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	srv, err := mockserver.New(mockserver.Options{
		Executor: mockserver.EchoExecutor,
		Logger:   log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	mux := http.NewServeMux()
	mux.Handle(*path, srv)
	httpServer := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Shutdown did not complete cleanly")
		}
	}()

	log.Info().Str("addr", *listen).Str("path", *path).Msg("Serving reference endpoint")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
