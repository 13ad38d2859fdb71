package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/openprofiling/tracegrind/internal/httputil"
	"github.com/openprofiling/tracegrind/internal/logutil"
)

type ServiceConfig struct {
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	Port        string `env:"PORT" env-default:"8080"`
	SentryDSN   string `env:"SENTRY_DSN"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
}

type environment struct {
	config ServiceConfig
}

var release string

func newEnvironment() (*environment, error) {
	var e environment
	if err := cleanenv.ReadEnv(&e.config); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *environment) shutdown() {
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/health", e.getHealth},
		{http.MethodPost, "/convert", e.postConvert},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

func main() {
	env, err := newEnvironment()
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up environment")
	}

	logutil.ConfigureLogger(env.config.LogLevel)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              env.config.SentryDSN,
		EnableTracing:    true,
		Environment:      env.config.Environment,
		Release:          release,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	router, err := env.newRouter()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	server := http.Server{
		Addr:    ":" + env.config.Port,
		Handler: sentryhttp.New(sentryhttp.Options{}).Handle(router),
	}

	waitForShutdown := make(chan os.Signal)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	<-waitForShutdown

	env.shutdown()
}

func (e *environment) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
