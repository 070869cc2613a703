// Package scheduler
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	businessflow "github.com/pulseboard/pulseboard/business_flow"
	"github.com/pulseboard/pulseboard/config"
	"github.com/pulseboard/pulseboard/models"
)

// SyncScheduler periodically runs a fleet sync over every syncable account
type SyncScheduler struct {
	syncFlow businessflow.SyncFlow
	logger   *log.Logger
	interval time.Duration

	logWriter *lumberjack.Logger
}

// NewSyncScheduler creates the scheduler with its own rotating log so long
// fleet runs can be audited independently of the request logs
func NewSyncScheduler(syncFlow businessflow.SyncFlow, interval time.Duration, logCfg config.LoggingConfig) *SyncScheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	s := &SyncScheduler{
		syncFlow: syncFlow,
		interval: interval,
	}
	s.initSchedulerLogger(logCfg)
	return s
}

// initSchedulerLogger configures a logger that writes to both stdout and a rotating file
func (s *SyncScheduler) initSchedulerLogger(logCfg config.LoggingConfig) {
	if !logCfg.EnableSyncLog || logCfg.SyncLogPath == "" {
		s.logger = log.New(os.Stdout, "sync-scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return
	}
	s.logWriter = &lumberjack.Logger{
		Filename:   logCfg.SyncLogPath,
		MaxSize:    logCfg.MaxSize,
		MaxBackups: logCfg.MaxBackups,
		MaxAge:     logCfg.MaxAge,
		Compress:   logCfg.Compress,
	}
	mw := io.MultiWriter(os.Stdout, s.logWriter)
	s.logger = log.New(mw, "sync-scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Logger exposes the scheduler's logger for flows that share its output
func (s *SyncScheduler) Logger() *log.Logger {
	return s.logger
}

// SetSyncFlow wires the fleet sync flow. The scheduler is constructed before
// the flow so the flow can log through the scheduler's rotating writer.
func (s *SyncScheduler) SetSyncFlow(syncFlow businessflow.SyncFlow) {
	s.syncFlow = syncFlow
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *SyncScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		if s.logWriter != nil {
			_ = s.logWriter.Close()
		}
	}
}

func (s *SyncScheduler) runOnce(ctx context.Context) {
	if s.syncFlow == nil {
		s.logger.Printf("scheduler: sync flow not wired, skipping run")
		return
	}

	start := time.Now()
	summary, err := s.syncFlow.SyncAll(ctx, models.SyncTriggerCron)
	if err != nil {
		s.logger.Printf("scheduler: fleet sync failed: %v", err)
		return
	}

	s.logger.Printf("scheduler: fleet sync finished total=%d succeeded=%d partial=%d failed=%d took=%s",
		summary.Total, summary.Succeeded, summary.Partial, summary.Failed, time.Since(start).Round(time.Millisecond))

	for i := range summary.Results {
		r := &summary.Results[i]
		if r.Status == models.SyncStatusSuccess {
			continue
		}
		if r.ReconnectRequired {
			s.logger.Printf("scheduler: account=%d platform=%s needs reconnect", r.AccountID, r.Platform)
			continue
		}
		s.logger.Printf("scheduler: account=%d platform=%s status=%s posts=%d/%d error=%q",
			r.AccountID, r.Platform, r.Status, r.PostsSynced, r.PostsFound, r.Error)
	}
}
