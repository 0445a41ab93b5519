package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/config"
	liftSimulator "github.com/LeonardoBeccarini/snowpeak_monitor/internal/lift-simulator"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/logger"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/rabbitmq"
)

const serviceName = "lift-simulator"

func main() {
	v := viper.New()
	var (
		lift         entities.Lift
		interval     time.Duration
		restartAfter time.Duration
		state        string
		arrivalRate  float64
		lineSpeed    float64
		spacing      float64
		meanTemp     float64
		amplitude    float64
		baseWind     float64
		randomness   float64
		seed         int64
	)

	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Simulated ski-lift publishing readings and obeying operator commands",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lift.ID == "" {
				return fmt.Errorf("--lift-id is required")
			}
			file, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(v, file)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, serviceName)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			transport, err := rabbitmq.Dial(ctx, &rabbitmq.RabbitMQConfig{
				URL:            cfg.Broker.URL,
				User:           cfg.Broker.User,
				Password:       cfg.Broker.Password,
				ClientID:       serviceName + "-" + lift.ID + "-" + uuid.NewString()[:8],
				KeepAlive:      cfg.Broker.KeepAlive,
				ConnectTimeout: cfg.Broker.ConnectTimeout,
				ReconnectDelay: cfg.Broker.ReconnectDelay,
				ConnectRetries: cfg.Broker.ConnectRetries,
			}, log)
			if err != nil {
				return fmt.Errorf("broker: %w", err)
			}
			defer transport.Close()

			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			queue := liftSimulator.NewQueueModel(lift, arrivalRate, lineSpeed, spacing)
			gen := liftSimulator.NewDataGenerator(seed, meanTemp, amplitude, baseWind, randomness, queue)
			sim := liftSimulator.NewLiftSimulator(transport, transport, gen, lift, log,
				liftSimulator.WithRestartAfter(restartAfter),
				liftSimulator.WithInitialState(messages.ParseLiftStatus(state)))

			log.Info("lift simulator started",
				zap.String("lift_id", lift.ID),
				zap.Float64("slope_length_m", queue.SlopeLength),
				zap.Float64("utilization", queue.Utilization()),
				zap.Duration("interval", interval))
			return sim.Start(ctx, interval)
		},
	}

	f := root.Flags()
	f.StringP("config", "c", "", "YAML config file (broker and logging sections)")
	f.StringVar(&lift.ID, "lift-id", "", "lift identifier")
	f.StringVar(&lift.Name, "name", "", "lift name, used as sensor location")
	f.Float64Var(&lift.StartLatitude, "start-lat", 46.4926, "valley station latitude")
	f.Float64Var(&lift.StartLongitude, "start-lng", 11.3548, "valley station longitude")
	f.Float64Var(&lift.StartElevation, "start-elevation", 1450, "valley station elevation (m)")
	f.Float64Var(&lift.EndLatitude, "end-lat", 46.5012, "mountain station latitude")
	f.Float64Var(&lift.EndLongitude, "end-lng", 11.3671, "mountain station longitude")
	f.Float64Var(&lift.EndElevation, "end-elevation", 2100, "mountain station elevation (m)")
	f.IntVar(&lift.SeatCapacity, "seats", 4, "seats per carrier")
	f.DurationVar(&interval, "interval", 5*time.Second, "publish interval")
	f.DurationVar(&restartAfter, "restart-after", 0, "restart a stopped lift after this long (0 keeps it stopped)")
	f.StringVar(&state, "state", string(messages.StatusFullSteam), "initial state: full-steam, half-steam or stopped")
	f.Float64Var(&arrivalRate, "arrival-rate", 1500, "skiers per hour")
	f.Float64Var(&lineSpeed, "line-speed", 5, "rope speed (m/s)")
	f.Float64Var(&spacing, "carrier-spacing", 40, "meters between carriers")
	f.Float64Var(&meanTemp, "mean-temp", -4, "mean daily temperature (C)")
	f.Float64Var(&amplitude, "amplitude", 5, "daily temperature swing (C)")
	f.Float64Var(&baseWind, "base-wind", 6, "average wind speed (m/s)")
	f.Float64Var(&randomness, "randomness", 1.5, "wind noise standard deviation")
	f.Int64Var(&seed, "seed", 0, "random seed (0 uses the clock)")
	f.String("log-level", "info", "debug, info, warn or error")
	_ = v.BindPFlag("logging.level", f.Lookup("log-level"))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
