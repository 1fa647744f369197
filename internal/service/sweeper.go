package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"atstore-api/internal/metrics"
	"atstore-api/internal/repository"
)

// SweeperConfig holds configuration for the expiry sweeper.
type SweeperConfig struct {
	// ExpireInterval is how often overdue pending orders are expired.
	// Default: 1 minute
	ExpireInterval time.Duration

	// PurgeInterval is how often old expired orders are deleted.
	// Default: 24 hours
	PurgeInterval time.Duration

	// Retention is how long an expired order is kept before purge.
	// Default: 7 days
	Retention time.Duration

	// BatchSize caps the number of orders deleted per batch.
	// Default: 500
	BatchSize int
}

// Sweeper runs the periodic expire and purge passes over orders.
type Sweeper struct {
	orders  repository.OrderRepository
	config  SweeperConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	expireTicker *time.Ticker
	purgeTicker  *time.Ticker
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	isRunning    bool
	mu           sync.Mutex
}

// NewSweeper creates a new sweeper.
func NewSweeper(orders repository.OrderRepository, config SweeperConfig, m *metrics.Metrics, logger *zap.Logger) *Sweeper {
	if config.ExpireInterval <= 0 {
		config.ExpireInterval = time.Minute
	}
	if config.PurgeInterval <= 0 {
		config.PurgeInterval = 24 * time.Hour
	}
	if config.Retention <= 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	if config.BatchSize <= 0 || config.BatchSize > 500 {
		config.BatchSize = 500
	}

	return &Sweeper{
		orders:  orders,
		config:  config,
		metrics: m,
		logger:  logger.Named("sweeper"),
		now:     func() time.Time { return time.Now().UTC() },
		stopCh:  make(chan struct{}),
	}
}

// Start begins both periodic passes.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.expireTicker = time.NewTicker(s.config.ExpireInterval)
	s.purgeTicker = time.NewTicker(s.config.PurgeInterval)
	s.mu.Unlock()

	s.logger.Info("sweeper started",
		zap.Duration("expire_interval", s.config.ExpireInterval),
		zap.Duration("purge_interval", s.config.PurgeInterval),
		zap.Duration("retention", s.config.Retention))

	s.wg.Add(1)
	go s.run()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	// Catch up on anything that expired while the process was down.
	s.runPass("expire", s.RunExpire)

	for {
		select {
		case <-s.expireTicker.C:
			s.runPass("expire", s.RunExpire)
		case <-s.purgeTicker.C:
			s.runPass("purge", s.RunPurge)
		case <-s.stopCh:
			s.logger.Info("sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) runPass(name string, pass func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := pass(ctx)
	if err != nil {
		s.logger.Error("sweeper pass failed", zap.String("pass", name), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("sweeper pass finished", zap.String("pass", name), zap.Int64("orders", n))
	} else {
		s.logger.Debug("sweeper pass found nothing", zap.String("pass", name))
	}
}

// RunExpire moves every overdue pending order to expired.
func (s *Sweeper) RunExpire(ctx context.Context) (int64, error) {
	n, err := s.orders.ExpirePending(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.Expired(n)
	return n, nil
}

// RunPurge deletes expired orders older than the retention window.
func (s *Sweeper) RunPurge(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.Retention)
	n, err := s.orders.PurgeExpired(ctx, cutoff, s.config.BatchSize)
	s.metrics.Purged(n)
	return n, err
}

// Stop stops both passes and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.expireTicker != nil {
			s.expireTicker.Stop()
			s.purgeTicker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
		s.mu.Unlock()
	})
	s.wg.Wait()
}
