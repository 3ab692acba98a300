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

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-jobboard-client/server"
	"github.com/jrsteele09/go-jobboard-client/sessions"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the job board web front",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			return run(a)
		},
	}
}

func run(a *app) error {
	displayAppname(a.cfg.GetAppName())

	handler, err := server.New(a.cfg, a.machine, a.client, server.WithMetrics(a.metrics, a.registry))
	if err != nil {
		return err
	}

	states, unsubscribe := a.machine.Subscribe()
	defer unsubscribe()
	go logSessionChanges(states)

	go func() {
		// guarded routes render a loading page until this settles
		if err := a.machine.Bootstrap(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Bootstrap finished without a session")
		}
	}()

	srv := &http.Server{
		Addr:              a.cfg.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(srv) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func logSessionChanges(states <-chan sessions.State) {
	for s := range states {
		event := log.Info().Str("state", s.Kind.String())
		if s.Session != nil {
			event = event.Str("user_id", s.Session.User.ID).Str("role", s.Session.User.Role.String())
		}
		if s.Notice != "" {
			event = event.Str("notice", s.Notice)
		}
		event.Msg("Session state")
	}
}

func listenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("Server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
