// Command weather is a terminal front end for the weather lookup service.
// Each line read from stdin is submitted as a city; ":cities" lists saved
// cities and ":quit" exits.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/ambient"
	"github.com/kjstillabower/weather-lookup/internal/citycache"
	"github.com/kjstillabower/weather-lookup/internal/config"
	"github.com/kjstillabower/weather-lookup/internal/console"
	"github.com/kjstillabower/weather-lookup/internal/lookup"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/widget"
)

const skyWidth = 60

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLoggerAt(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = observability.Flush(logger) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openCityStore(ctx, cfg)
	if err != nil {
		logger.Fatal("city store", zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("city store close", zap.Error(err))
		}
	}()

	backend, err := lookup.NewHTTPBackend(cfg.BackendURL, cfg.Timeout)
	if err != nil {
		logger.Fatal("backend", zap.Error(err))
	}

	suggestions := &console.Suggestions{}
	cities := citycache.New(store, suggestions, logger)
	view := console.NewResultView(os.Stdout)
	controller := lookup.NewController(backend, view, cities, logger)

	input := &console.Input{}
	sky := &console.Sky{}
	wcfg := widget.Config{
		Input:   input,
		Lookups: controller,
		Cities:  cities,
		Logger:  logger,
	}
	if cfg.Effects {
		wcfg.Effects = ambient.NewGenerator(nil)
		wcfg.Container = sky
	}
	w := widget.New(wcfg)
	w.Load(ctx)

	if sky.Len() > 0 {
		fmt.Println(sky.Row(skyWidth))
	}
	run(ctx, w, input, cities, suggestions, os.Stdin, os.Stdout)
}

func run(ctx context.Context, w *widget.Widget, input *console.Input, cities *citycache.Cache, suggestions *console.Suggestions, in io.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(out, "City: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return
			}
			line = l
		}

		switch cmd := strings.TrimSpace(line); {
		case cmd == ":quit":
			return
		case cmd == ":cities":
			cities.RefreshSuggestions(ctx)
			for _, c := range suggestions.Items() {
				fmt.Fprintln(out, "  "+c)
			}
			continue
		case strings.HasPrefix(cmd, ":complete "):
			for _, c := range suggestions.Complete(strings.TrimPrefix(cmd, ":complete ")) {
				fmt.Fprintln(out, "  "+c)
			}
			continue
		}

		input.Set(line)
		results, ok := w.KeyPress(ctx, widget.KeyEnter)
		if !ok {
			continue
		}
		select {
		case <-results:
		case <-ctx.Done():
			return
		case <-time.After(time.Minute):
			fmt.Fprintln(out, "Error: lookup did not finish")
		}
	}
}

func openCityStore(ctx context.Context, cfg *config.ClientConfig) (citycache.Store, func() error, error) {
	switch cfg.CityStore {
	case config.CityStoreMemory:
		return citycache.NewMemoryStore(), func() error { return nil }, nil
	case config.CityStoreRedis:
		connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		s, err := citycache.NewRedisStore(connCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Profile)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := citycache.NewSQLiteStore(cfg.CityStorePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}
