package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sprout-iot/sprout/internal/config"
	"github.com/sprout-iot/sprout/pkg/health"
	"github.com/sprout-iot/sprout/pkg/hub"
	"github.com/sprout-iot/sprout/pkg/ingest"
	"github.com/sprout-iot/sprout/pkg/middleware"
	"github.com/sprout-iot/sprout/pkg/server"
	"github.com/sprout-iot/sprout/pkg/sink"
	"github.com/sprout-iot/sprout/pkg/state"
)

type serveFlags struct {
	serialPort string
	baudRate   int
	port       int
	host       string
	noSerial   bool
}

func serveCmd(global *globalFlags) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long: `Run the gateway: read frames from the serial device, accept
discrete submissions and broadcast the latest reading.

Examples:
  sprout serve
  sprout serve --serial-port=/dev/ttyACM0 --baud=115200
  sprout serve --no-serial --port=8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			if fs.Changed("serial-port") {
				cfg.Serial.Port = flags.serialPort
			}
			if fs.Changed("baud") {
				cfg.Serial.BaudRate = flags.baudRate
			}
			if fs.Changed("port") {
				cfg.HTTP.Port = flags.port
			}
			if fs.Changed("host") {
				cfg.HTTP.Host = flags.host
			}
			if flags.noSerial {
				cfg.Serial.Disabled = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&flags.serialPort, "serial-port", "", "Serial device address (default /dev/ttyUSB0)")
	cmd.Flags().IntVarP(&flags.baudRate, "baud", "b", 0, "Serial baud rate (default 9600)")
	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "HTTP port (default 3000)")
	cmd.Flags().StringVarP(&flags.host, "host", "H", "", "HTTP host to bind to")
	cmd.Flags().BoolVar(&flags.noSerial, "no-serial", false, "Run on discrete submissions only")

	return cmd
}

// loadConfig resolves config from file and environment and applies the
// global log flags.
func loadConfig(global *globalFlags) (*config.Config, error) {
	cfg, err := config.Resolve(global.configPath, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if global.logLevel != "" {
		cfg.Log.Level = global.logLevel
	}
	if global.logFormat != "" {
		cfg.Log.Format = global.logFormat
	}
	return cfg, nil
}

// runServe wires the gateway and blocks until ctx is cancelled. Shutdown
// order: HTTP server, stream source, then the hub, which closes every
// subscriber including the sinks.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) error {
	store := state.New()
	pipeline := ingest.NewPipeline(store, ingest.WithPipelineLogger(logger))
	h := hub.New(store, hub.Config{
		HeartbeatInterval: cfg.Hub.Heartbeat.Std(),
		QueueSize:         cfg.Hub.QueueSize,
		SendTimeout:       cfg.Hub.WriteTimeout.Std(),
		PrimeSubscribers:  true,
	}, hub.WithLogger(logger))
	defer h.Close()

	for _, s := range buildSinks(ctx, cfg, logger) {
		if _, err := h.Subscribe(s); err != nil {
			return err
		}
	}

	reporter := &health.Reporter{
		Frames:      pipeline,
		Subscribers: h,
		Readings:    store,
		StaleAfter:  cfg.Health.StaleAfter.Std(),
	}
	sources := middleware.Sources{
		FramesAccepted: pipeline.Accepted,
		FramesRejected: pipeline.Rejected,
		Subscribers:    h.Count,
		ReadingAge:     store.Age,
		Broadcasts:     func() uint64 { return h.Stats().Broadcasts },
		Evictions:      func() uint64 { return h.Stats().Evictions },
	}

	var stream *ingest.StreamSource
	if !cfg.Serial.Disabled {
		opener := ingest.SerialOpener{Address: cfg.Serial.Port, BaudRate: cfg.Serial.BaudRate}
		stream = ingest.NewStreamSource(opener, pipeline, ingest.StreamConfig{
			Backoff: ingest.Backoff{
				Initial:    cfg.Serial.Reconnect.Initial.Std(),
				Max:        cfg.Serial.Reconnect.Max.Std(),
				Multiplier: cfg.Serial.Reconnect.Multiplier,
			},
			MaxFrameSize: cfg.Serial.MaxFrameSize,
		}, ingest.WithStreamLogger(logger))

		reporter.Stream = stream
		sources.StreamConnected = stream.Connected
		sources.DeviceReconnects = func() uint64 { return stream.Stats().Disconnects }
	} else {
		logger.Info("serial ingestion disabled, accepting submissions only")
	}

	srvConfig := server.Config{
		Address:        cfg.HTTP.Addr(),
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
	if cfg.HTTP.AccessLog {
		srvConfig.AccessLog = stderr
	}
	srv := server.New(server.Deps{
		Store:    store,
		Pipeline: pipeline,
		Hub:      h,
		Health:   reporter,
		Metrics:  middleware.NewMetrics(sources),
		Tracing: middleware.Tracing(middleware.WithRequestFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		})),
	}, srvConfig, server.WithLogger(logger))

	printBanner(stderr)
	fmt.Fprintf(stderr, "  listening on %s\n\n", cfg.HTTP.Addr())

	streamCtx, cancelStream := context.WithCancel(context.Background())
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		if stream != nil {
			stream.Run(streamCtx)
		}
	}()

	err := srv.Run(ctx)

	cancelStream()
	<-streamDone
	return err
}

// buildSinks connects every configured sink. A sink that cannot connect is
// logged and skipped so the gateway still serves local subscribers.
func buildSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) []hub.Subscriber {
	var sinks []hub.Subscriber
	opt := sink.WithLogger(logger)

	if c := cfg.Sinks.MQTT; c.Broker != "" {
		mq, err := sink.DialMQTT(ctx, sink.MQTTConfig{
			Broker:   c.Broker,
			Topic:    c.Topic,
			QoS:      c.QoS,
			Retained: c.Retained,
		}, opt)
		if err != nil {
			logger.Error("mqtt sink disabled", "broker", c.Broker, "error", err)
		} else {
			sinks = append(sinks, mq)
		}
	}

	if c := cfg.Sinks.Kafka; len(c.Brokers) > 0 {
		kc := sink.KafkaConfig{Brokers: c.Brokers, Topic: c.Topic}
		sinks = append(sinks, sink.NewKafka(sink.NewKafkaWriter(kc), kc, opt))
	}

	if c := cfg.Sinks.S3; c.Bucket != "" {
		sc := sink.S3Config{Bucket: c.Bucket, Key: c.Key, Region: c.Region, Endpoint: c.Endpoint}
		sinks = append(sinks, sink.NewS3Snapshot(sink.NewS3Client(sc), sc, opt))
	}
	return sinks
}
