package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/caisseflow/pkg/config"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        pinger
	Redis     pinger
	Processor runner
	Heartbeat time.Duration
}

type Service struct {
	cfg       *config.Config
	logg      *logger.Logger
	db        pinger
	redis     pinger
	processor runner
	heartbeat time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Processor == nil {
		return nil, errors.New("action processor is required")
	}
	heartbeat := params.Heartbeat
	if heartbeat <= 0 {
		heartbeat = time.Minute
	}

	return &Service{
		cfg:       params.Config,
		logg:      params.Logger,
		db:        params.DB,
		redis:     params.Redis,
		processor: params.Processor,
		heartbeat: heartbeat,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.processor.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "action processor stopped unexpectedly", err)
			}
			return err
		case <-ticker.C:
			s.logg.Info(ctx, "worker.heartbeat")
		}
	}
}
