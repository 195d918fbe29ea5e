package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brixsport/go-auth-client/auth"
	"github.com/brixsport/go-auth-client/internal/config"
	"github.com/brixsport/go-auth-client/tokenstore"
	"github.com/brixsport/go-auth-client/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("loggercli failed")
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppName(c.GetAppName())

	store := tokenstore.NewFileStore(c.GetTokenFile())
	authTransport := transport.NewHTTPTransport(c.GetAuthBaseURL(), transport.WithLogger(log.Logger))

	controller, err := auth.NewSessionController(store, authTransport,
		auth.WithLeadTime(c.GetRefreshLeadTime()),
		auth.WithLogger(log.Logger),
	)
	if err != nil {
		return err
	}
	defer controller.Close()

	controller.Subscribe(func(st auth.State) {
		evt := log.Info().Bool("authenticated", st.IsAuthenticated)
		if st.User != nil {
			evt = evt.Str("user", st.User.ID).Str("role", string(st.User.Role))
		}
		if st.Err != nil {
			evt = evt.AnErr("reason", st.Err)
		}
		evt.Msg("session state changed")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "logout" {
		if err := controller.Initialize(ctx); err != nil {
			log.Warn().Err(err).Msg("could not resume stored session")
		}
		return controller.Logout(ctx)
	}

	if err := controller.Initialize(ctx); err != nil {
		log.Warn().Err(err).Msg("could not resume stored session")
	}

	if !controller.State().IsAuthenticated {
		email := config.GetEnv("BRIX_EMAIL", "")
		password := config.GetEnv("BRIX_PASSWORD", "")
		if email == "" || password == "" {
			return errors.New("no stored session; set BRIX_EMAIL and BRIX_PASSWORD to log in")
		}
		if err := controller.Login(ctx, transport.Credentials{Email: email, Password: password}); err != nil {
			return errors.Wrap(err, "login failed")
		}
	}

	log.Info().Str("token_file", c.GetTokenFile()).Msg("session active, keeping token fresh (ctrl-c to exit)")
	<-ctx.Done()
	log.Info().Msg("shutting down, session kept on disk")
	return nil
}

func displayAppName(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
