package jobs

import (
	"io"
	"log"
	"testing"
	"time"
)

func TestNewEventRetentionJobDefaults(t *testing.T) {
	logger := log.New(io.Discard, "", 0)

	j := NewEventRetentionJob(nil, logger, 0, 0)
	if j.interval != time.Hour {
		t.Errorf("interval = %v, want 1h", j.interval)
	}
	if j.retention != 30*24*time.Hour {
		t.Errorf("retention = %v, want 30 days", j.retention)
	}

	j = NewEventRetentionJob(nil, logger, 5*time.Minute, 48*time.Hour)
	if j.interval != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", j.interval)
	}
	if j.retention != 48*time.Hour {
		t.Errorf("retention = %v, want 48h", j.retention)
	}
}
