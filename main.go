package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-jbd-exporter/ble"
	"github.com/robertof/go-jbd-exporter/collector"
	"github.com/robertof/go-jbd-exporter/collector/model"
	"github.com/robertof/go-jbd-exporter/device"
	"github.com/robertof/go-jbd-exporter/metrics"
	"github.com/robertof/go-jbd-exporter/telemetry"
	"github.com/robertof/go-jbd-exporter/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.LogFile != "" {
    log.Logger = zerolog.New(&lumberjack.Logger{
      Filename: cfg.LogFile,
      MaxSize: 10, // MB
      MaxBackups: 5,
      MaxAge: 30, // days
      Compress: true,
    }).With().Timestamp().Logger()
  }

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  if err := run(cfg); err != nil {
    log.Fatal().Err(err).Msg("Exporter terminated")
  }
}

func run(cfg config) error {
  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Array("Devices", utils.ToZeroLogArray(cfg.Devices)).
    Dur("Interval", cfg.Interval).
    Str("Output", string(cfg.Output)).
    Msg("Starting with the specified configuration")

  ctx := ble.WrapContextWithSigHandler(context.WithCancel(context.Background()))

  registry := prometheus.NewRegistry()

  if cfg.EnableMetamonitoring {
    registry.MustRegister(
      collectors.NewGoCollector(),
      collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
    )
    ble.RegisterMetrics(registry)
    collector.RegisterMetrics(registry)
  }

  var env device.Env

  if bleHandle, err := initBle(cfg); err != nil {
    return err
  } else if bleHandle != nil {
    defer bleHandle.Stop()
    env.BLE = bleHandle
  }

  emitter, err := initTelemetry(cfg)
  if err != nil {
    return err
  }
  defer emitter.Close()

  coll := collector.NewRecurring(env, cfg.Devices)
  coll.OnRecord = func(ctx context.Context, r model.DeviceRecord) {
    if err := telemetry.EmitRecord(ctx, emitter, r.Meter(), r.Record, r.At); err != nil {
      log.Warn().Err(err).Stringer("Device", r.Device).Msg("Failed to publish record")
    }
  }

  metrics.RegisterCollector(coll.Latest, registry)

  if cfg.BindAddress != "" {
    server, err := startMetricsServer(cfg.BindAddress, registry)
    if err != nil {
      return err
    }

    defer func() {
      shutdownCtx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
      defer cancel()

      server.Shutdown(shutdownCtx)
    }()
  }

  return coll.Start(ctx, collector.PollOptions{
    Interval: cfg.Interval,
    ResponseTimeout: cfg.ResponseTimeout,
    ReconnectDelay: cfg.ReconnectDelay,
  })
}

// initBle brings up the HCI device only when a configured device talks BLE.
func initBle(cfg config) (*ble.Handle, error) {
  needed := slices.ContainsFunc(cfg.Devices, func(dev device.Device) bool {
    return dev.Flags() & device.FlagRequiresBle == device.FlagRequiresBle
  })

  if !needed {
    return nil, nil
  }

  bleHandle, err := ble.Open(cfg.BluetoothDeviceId, ble.Options{
    ConnParams: cfg.BluetoothConnParams,
    PersistConnections: cfg.PersistConnections,
  })

  if err != nil {
    return nil, fmt.Errorf("failed to initialize Bluetooth device: %w", err)
  }

  return bleHandle, nil
}

func initTelemetry(cfg config) (*telemetry.Multi, error) {
  m := telemetry.NewMulti()

  fail := func(err error) (*telemetry.Multi, error) {
    m.Close()
    return nil, err
  }

  if cfg.Output != telemetry.FormatNone {
    m.Add("stdout", telemetry.NewWriterEmitter(os.Stdout, cfg.Output))
  }

  if cfg.Socket != "" {
    s, err := telemetry.NewSocketEmitter(cfg.Socket, cfg.Output)
    if err != nil {
      return fail(err)
    }
    m.Add("socket", s)
  }

  if cfg.MQTTBroker != "" {
    mq, err := telemetry.NewMQTTEmitter(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
    if err != nil {
      return fail(err)
    }
    m.Add("mqtt", mq)
  }

  if brokers := cfg.kafkaBrokers(); len(brokers) > 0 {
    m.Add("kafka", telemetry.NewKafkaEmitter(brokers, cfg.KafkaTopic))
  }

  if cfg.AMQPURL != "" {
    a, err := telemetry.NewAMQPEmitter(cfg.AMQPURL, cfg.AMQPExchange)
    if err != nil {
      return fail(err)
    }
    m.Add("amqp", a)
  }

  if cfg.RedisAddr != "" {
    m.Add("redis", telemetry.NewRedisEmitter(cfg.RedisAddr, cfg.RedisPrefix))
  }

  log.Info().Strs("Sinks", m.Names()).Msg("Telemetry sinks configured")

  return m, nil
}

func startMetricsServer(addr string, registry *prometheus.Registry) (*http.Server, error) {
  listener, err := net.Listen("tcp", addr)

  if err != nil {
    return nil, fmt.Errorf("unable to bind on requested address: %w", err)
  }

  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  server := &http.Server{Handler: mux}

  log.Info().
      Str("ListenAddress", listener.Addr().String()).
      Msg("Starting Prometheus server")

  go func() {
    if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
      log.Error().Err(err).Msg("Prometheus server failed")
    }
  }()

  return server, nil
}
