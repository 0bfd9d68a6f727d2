package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uvensys/slidegate"
	"github.com/uvensys/slidegate/internal"
	libslidegate "github.com/uvensys/slidegate/lib"
	"github.com/uvensys/slidegate/lib/provider"
)

var (
	bind            = flag.String("bind", ":8923", "network address to bind HTTP to")
	configFname     = flag.String("config", "", "path to the slidegate config file (YAML)")
	healthcheck     = flag.Bool("healthcheck", false, "run a health check against slidegate and exit")
	metricsBind     = flag.String("metrics-bind", ":9090", "network address to bind metrics to, set to an empty string to disable")
	slogLevel       = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	storeBackend    = flag.String("store-backend", "memory", "store backend to use when no config file is given (see -help for registered backends)")
	providerRetries = flag.Int("provider-retries", provider.DefaultMaxRetries, "attempts against a third-party verifier before falling back to local scoring")
	versionFlag     = flag.Bool("version", false, "print slidegate version")
)

func doHealthCheck() error {
	resp, err := http.Get("http://localhost" + *bind + "/healthz")
	if err != nil {
		return fmt.Errorf("failed to fetch health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

func loadConfig() (*libslidegate.Config, error) {
	if *configFname == "" {
		return &libslidegate.Config{
			Store: libslidegate.StoreConfig{Backend: *storeBackend},
		}, nil
	}

	return libslidegate.LoadConfigFile(*configFname)
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("slidegate", slidegate.Version)
		return
	}

	if *healthcheck {
		if err := doHealthCheck(); err != nil {
			log.Fatal(err)
		}
		return
	}

	internal.InitSlog(*slogLevel)

	config, err := loadConfig()
	if err != nil {
		log.Fatalf("can't load config: %v", err)
	}

	wg := new(sync.WaitGroup)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := config.Store.Build(ctx)
	if err != nil {
		log.Fatalf("can't construct %s store: %v", config.Store.Backend, err)
	}

	var verifier provider.Verifier
	if config.Provider != nil {
		verifier, err = config.Provider.Build()
		if err != nil {
			log.Fatalf("can't construct %s provider: %v", config.Provider.Method, err)
		}
	}

	s, err := libslidegate.New(libslidegate.Options{
		Store:           st,
		Provider:        verifier,
		ProviderRetries: *providerRetries,
		MaxAttempts:     config.MaxAttempts,
		ChallengeTTL:    config.ChallengeTTL,
		TokenTTL:        config.TokenTTL,
		IssueLimit:      config.IssueLimit,
		IssueWindow:     config.IssueWindow,
	})
	if err != nil {
		log.Fatalf("can't construct slidegate server: %v", err)
	}

	if *metricsBind != "" {
		wg.Add(1)
		go metricsServer(ctx, wg.Done)
	}

	var h http.Handler
	h = s
	h = internal.XForwardedForToXRealIP(h)

	srv := http.Server{Handler: h, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, err := net.Listen("tcp", *bind)
	if err != nil {
		log.Fatal(err)
	}

	providerMethod := "none"
	if config.Provider != nil {
		providerMethod = config.Provider.Method
	}

	slog.Info(
		"listening",
		"bind", *bind,
		"version", slidegate.Version,
		"store-backend", config.Store.Backend,
		"provider", providerMethod,
	)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	wg.Wait()
}

func metricsServer(ctx context.Context, done func()) {
	defer done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := http.Server{Handler: mux, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, err := net.Listen("tcp", *metricsBind)
	if err != nil {
		log.Fatal(err)
	}
	slog.Debug("listening for metrics", "bind", *metricsBind)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
