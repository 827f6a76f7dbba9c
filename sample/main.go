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

	"github.com/go-redis/redis"
	"github.com/jmoiron/sqlx"
	gocoalescer "github.com/mspnp/go-coalescer"
	goconfig "github.com/plasne/go-config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"
)

var flagPort int

func init() {

	// startup config
	err := goconfig.Startup()
	if err != nil {
		panic(err)
	}

	// start config block
	fmt.Println("CONFIGURATION:")

	// configure logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	logLevels := map[string]int{
		"trace":    int(zerolog.TraceLevel),
		"debug":    int(zerolog.DebugLevel),
		"info":     int(zerolog.InfoLevel),
		"warn":     int(zerolog.WarnLevel),
		"error":    int(zerolog.ErrorLevel),
		"fatal":    int(zerolog.FatalLevel),
		"panic":    int(zerolog.PanicLevel),
		"nolevel":  int(zerolog.NoLevel),
		"disabled": int(zerolog.Disabled),
	}
	logLevel := goconfig.AsInt().TrySetByEnv("LOG_LEVEL").Lookup(logLevels).Clamp(-1, 7).DefaultTo(int(zerolog.InfoLevel)).PrintLookup(logLevels).Value()
	zerolog.SetGlobalLevel(zerolog.Level(logLevel))

	// allow for flags to override env
	flag.IntVar(&flagPort, "port", 0, "Determines the port to listen for HTTP requests. This overrides PORT.")

}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// complete configuration
	flag.Parse()
	PORT := goconfig.AsInt().TrySetValue(flagPort).TrySetByEnv("PORT").DefaultTo(8080).Print().Value()
	BATCH_FREQUENCY_MS := goconfig.AsInt().TrySetByEnv("BATCH_FREQUENCY_MS").DefaultTo(100).Print().Value()
	MAX_BATCH_SIZE := goconfig.AsInt().TrySetByEnv("MAX_BATCH_SIZE").DefaultTo(0).Print().Value()
	DSN := goconfig.AsString().TrySetByEnv("DSN").DefaultTo("file:users.db").Print().Value()
	UPSTREAM_URL := goconfig.AsString().TrySetByEnv("UPSTREAM_URL").Print().Value()
	REDIS_ADDR := goconfig.AsString().TrySetByEnv("REDIS_ADDR").Print().Value()
	AZBLOB_ACCOUNT := goconfig.AsString().TrySetByEnv("AZBLOB_ACCOUNT").Print().Value()
	AZBLOB_KEY := goconfig.AsString().TrySetByEnv("AZBLOB_KEY").PrintMasked().Value()
	AZBLOB_CONTAINER := goconfig.AsString().TrySetByEnv("AZBLOB_CONTAINER").DefaultTo("users").Print().Value()
	listener := gocoalescer.NewLogListener(log.Logger)

	// choose where users come from
	srv := &server{}
	var fetcher gocoalescer.Fetcher[int, User]
	if UPSTREAM_URL != "" {
		fetcher = gocoalescer.NewHTTPFetcher[int, User](UPSTREAM_URL, userID)
	} else {
		db, err := sqlx.Open("sqlite", DSN)
		if err != nil {
			panic(err)
		}
		defer db.Close()
		db.SetMaxOpenConns(1)
		db.MustExec(schema)
		srv.db = db
		fetcher = gocoalescer.NewSQLFetcher[int, User](db, `SELECT id, name FROM users WHERE id IN (?)`, userID)
	}

	// choose where loaded users are distributed to
	stores := []gocoalescer.Store[int, User]{gocoalescer.NewMemoryStore[int, User]()}
	if REDIS_ADDR != "" {
		client := redis.NewClient(&redis.Options{Addr: REDIS_ADDR})
		defer client.Close()
		stores = append(stores, gocoalescer.NewRedisStore[int, User](client, "user:").WithTTL(time.Hour))
	}
	if AZBLOB_ACCOUNT != "" {
		azstore := gocoalescer.NewAzureBlobStore[int, User](AZBLOB_ACCOUNT, AZBLOB_CONTAINER).
			WithPrefix("users/")
		if AZBLOB_KEY != "" {
			azstore.WithMasterKey(AZBLOB_KEY)
		}
		azstoreListener := azstore.AddListener(listener)
		defer azstore.RemoveListener(azstoreListener)
		if err := azstore.Provision(ctx); err != nil {
			panic(err)
		}
		stores = append(stores, azstore)
	}

	// configure the load manager
	srv.users = gocoalescer.NewLoadManager[int, User](fetcher, gocoalescer.MultiStore(stores...)).
		WithBatchFrequency(time.Duration(BATCH_FREQUENCY_MS) * time.Millisecond).
		WithMaxBatchSize(uint32(MAX_BATCH_SIZE)).
		WithMaxOperationTime(10 * time.Second)
	usersListener := srv.users.AddListener(listener)
	defer srv.users.RemoveListener(usersListener)
	if err := srv.users.Start(ctx); err != nil {
		panic(err)
	}
	defer srv.users.Stop()

	// configure the write queue
	srv.writes = gocoalescer.NewTaskQueue(1000).
		WithErrorOnFullBuffer()
	writesListener := srv.writes.AddListener(listener)
	defer srv.writes.RemoveListener(writesListener)
	if err := srv.writes.Start(ctx); err != nil {
		panic(err)
	}
	defer srv.writes.Stop()

	// serve until interrupted
	httpServer := &http.Server{Addr: fmt.Sprintf(":%v", PORT), Handler: srv.router()}
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info().Msgf("listening on port %v...", PORT)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := group.Wait(); err != nil {
		log.Err(err).Msg("the server stopped unexpectedly.")
	}

}
