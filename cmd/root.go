package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meetpointio/meetpoint/healthcheck"
	"github.com/meetpointio/meetpoint/metrics"
	"github.com/meetpointio/meetpoint/server"
	"github.com/meetpointio/meetpoint/server/listener/quic"
	"github.com/meetpointio/meetpoint/server/listener/ws"
	"github.com/meetpointio/meetpoint/util"
)

type Config struct {
	ListenAddress            string
	QUICListenAddress        string
	MetricsPort              int
	TlsCertFile              string
	TlsKeyFile               string
	LogLevel                 string
	LogFile                  string
	HealthcheckListenAddress string
}

func (c Config) Validate() error {
	if c.ListenAddress == "" && c.QUICListenAddress == "" {
		return fmt.Errorf("at least one of --listen-address and --quic-listen-address is required")
	}
	if (c.TlsCertFile == "") != (c.TlsKeyFile == "") {
		return fmt.Errorf("--tls-cert-file and --tls-key-file must be set together")
	}
	return nil
}

func (c Config) HasCertConfig() bool {
	return c.TlsCertFile != "" && c.TlsKeyFile != ""
}

var (
	cobraConfig *Config
	rootCmd     = &cobra.Command{
		Use:           "meetpoint",
		Short:         "Rendezvous relay service",
		Long:          "Relay service that pairs a NAT-bound host with a client via a shared session identifier and forwards opaque messages between them",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          execute,
	}
)

func init() {
	_ = util.InitLog("trace", util.LogConsole)
	cobraConfig = &Config{}
	rootCmd.PersistentFlags().StringVarP(&cobraConfig.ListenAddress, "listen-address", "l", ":8765", "websocket listen address, empty to disable")
	rootCmd.PersistentFlags().StringVarP(&cobraConfig.QUICListenAddress, "quic-listen-address", "q", "", "quic listen address, empty to disable")
	rootCmd.PersistentFlags().IntVar(&cobraConfig.MetricsPort, "metrics-port", 9090, "metrics endpoint http port. Metrics are accessible under host:metrics-port/metrics")
	rootCmd.PersistentFlags().StringVarP(&cobraConfig.TlsCertFile, "tls-cert-file", "c", "", "certificate for the quic listener, self-signed when unset")
	rootCmd.PersistentFlags().StringVarP(&cobraConfig.TlsKeyFile, "tls-key-file", "k", "", "")
	rootCmd.PersistentFlags().StringVar(&cobraConfig.LogLevel, "log-level", "info", "log level")
	rootCmd.PersistentFlags().StringVar(&cobraConfig.LogFile, "log-file", util.LogConsole, "log file")
	rootCmd.PersistentFlags().StringVarP(&cobraConfig.HealthcheckListenAddress, "health-listen-address", "H", ":9000", "listen address of healthcheck server")

	setFlagsFromEnvVars(rootCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

func waitForExitSignal() {
	osSigs := make(chan os.Signal, 1)
	signal.Notify(osSigs, syscall.SIGINT, syscall.SIGTERM)
	<-osSigs
}

func execute(cmd *cobra.Command, args []string) error {
	wg := sync.WaitGroup{}
	if err := cobraConfig.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := util.InitLog(cobraConfig.LogLevel, cobraConfig.LogFile); err != nil {
		return fmt.Errorf("failed to initialize log: %w", err)
	}

	// resource creation phase, fail fast before starting any goroutines

	metricsServer, err := metrics.NewServer(cobraConfig.MetricsPort, "")
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}

	srv, err := server.NewServer(metricsServer.Meter)
	if err != nil {
		return fmt.Errorf("failed to create relay server: %w", err)
	}

	listeners, err := createListeners(cobraConfig)
	if err != nil {
		return err
	}

	httpHealthcheck := healthcheck.NewServer(healthcheck.Config{
		ListenAddress: cobraConfig.HealthcheckListenAddress,
	})

	startServers(&wg, metricsServer, srv, listeners, httpHealthcheck)

	waitForExitSignal()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = shutdownServers(ctx, metricsServer, srv, httpHealthcheck)
	wg.Wait()
	return err
}

func createListeners(cfg *Config) ([]server.Listener, error) {
	var listeners []server.Listener
	if cfg.ListenAddress != "" {
		listeners = append(listeners, ws.NewListener(cfg.ListenAddress))
	}
	if cfg.QUICListenAddress != "" {
		var tlsConfig *tls.Config
		if cfg.HasCertConfig() {
			cert, err := tls.LoadX509KeyPair(cfg.TlsCertFile, cfg.TlsKeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load tls certificate: %w", err)
			}
			tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		}
		listeners = append(listeners, quic.NewListener(cfg.QUICListenAddress, tlsConfig))
	}
	return listeners, nil
}

func startServers(wg *sync.WaitGroup, metricsServer *metrics.Server, srv *server.Server, listeners []server.Listener, httpHealthcheck *healthcheck.Server) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("running metrics server: %s%s", metricsServer.Addr, metricsServer.Endpoint)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start metrics server: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Listen(listeners...); err != nil {
			log.Fatalf("failed to bind relay server: %s", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("running healthcheck server: %s", httpHealthcheck.Addr)
		if err := httpHealthcheck.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start healthcheck server: %v", err)
		}
	}()
}

func shutdownServers(ctx context.Context, metricsServer *metrics.Server, srv *server.Server, httpHealthcheck *healthcheck.Server) error {
	var errs error

	if err := httpHealthcheck.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("failed to close healthcheck server: %w", err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("failed to close relay server: %w", err))
	}

	log.Infof("shutting down metrics server")
	if err := metricsServer.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("failed to close metrics server: %w", err))
	}

	return errs
}
