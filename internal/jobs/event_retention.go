// Package jobs contains background maintenance jobs.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRetentionJob prunes old rows from request_events so the pipeline event
// log does not grow without bound. It runs on a configurable interval
// (default: 1 hour) and deletes events older than the retention window.
type EventRetentionJob struct {
	db        *pgxpool.Pool
	logger    *log.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewEventRetentionJob creates a retention job. Zero interval defaults to one
// hour, zero retention to 30 days.
func NewEventRetentionJob(db *pgxpool.Pool, logger *log.Logger, interval, retention time.Duration) *EventRetentionJob {
	if interval == 0 {
		interval = time.Hour
	}
	if retention == 0 {
		retention = 30 * 24 * time.Hour
	}
	return &EventRetentionJob{
		db:        db,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background job.
func (j *EventRetentionJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Printf("EventRetentionJob: started (interval=%v, retention=%v)", j.interval, j.retention)
}

// Stop gracefully stops the background job.
func (j *EventRetentionJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Println("EventRetentionJob: stopped")
}

func (j *EventRetentionJob) run() {
	defer j.wg.Done()

	// Run immediately on start
	j.prune()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.prune()
		case <-j.stopCh:
			return
		}
	}
}

func (j *EventRetentionJob) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)
	tag, err := j.db.Exec(ctx, `DELETE FROM request_events WHERE created_at < $1`, cutoff)
	if err != nil {
		j.logger.Printf("EventRetentionJob: prune failed: %v", err)
		return
	}
	if tag.RowsAffected() > 0 {
		j.logger.Printf("EventRetentionJob: pruned %d events older than %v", tag.RowsAffected(), j.retention)
	}
}
