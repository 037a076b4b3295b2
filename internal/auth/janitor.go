package auth

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/logging"
)

// DefaultJanitorSchedule sweeps expired tokens once an hour.
const DefaultJanitorSchedule = "@every 1h"

// Sweeper removes expired tokens. TokenStore implements it.
type Sweeper interface {
	CleanupExpiredSessions() int
	CleanupExpiredDevices() int
}

// Janitor periodically evicts expired tokens for the life of the process.
// A failing or panicking sweep is logged and the schedule carries on.
type Janitor struct {
	store    Sweeper
	schedule string
	log      logrus.FieldLogger

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewJanitor creates a janitor for store. An empty schedule uses the default.
func NewJanitor(store Sweeper, schedule string, logger logrus.FieldLogger) *Janitor {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	if logger == nil {
		logger = logging.Discard()
	}
	log := logging.Component(logger, "janitor")
	return &Janitor{
		store:    store,
		schedule: schedule,
		log:      log,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log)))),
	}
}

// Start registers the sweep and starts the scheduler. Calling Start twice is a no-op.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.started {
		return nil
	}
	if _, err := j.cron.AddFunc(j.schedule, j.RunOnce); err != nil {
		return fmt.Errorf("schedule janitor %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.started = true

	j.log.WithField("schedule", j.schedule).Info("janitor started")
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
// Only used on process shutdown.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return
	}
	j.started = false
	j.mu.Unlock()

	<-j.cron.Stop().Done()
}

// RunOnce performs a single sweep. Panics are recovered and logged.
func (j *Janitor) RunOnce() {
	defer func() {
		if r := recover(); r != nil {
			j.log.WithField("panic", r).Error("token sweep failed")
		}
	}()

	sessions := j.store.CleanupExpiredSessions()
	devices := j.store.CleanupExpiredDevices()
	j.log.WithFields(logrus.Fields{
		"sessions_removed": sessions,
		"devices_removed":  devices,
	}).Info("token sweep complete")
}
