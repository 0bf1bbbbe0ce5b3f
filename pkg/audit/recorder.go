package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/estateops/pkg/events"
	"github.com/platinummonkey/estateops/pkg/observability"
)

// SubscriberName identifies the recorder on the bus
const SubscriberName = "activity-log"

// Recorder turns bus events into activity entries
type Recorder struct {
	store   Store
	log     *logrus.Logger
	metrics *observability.Metrics
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store Store, log *logrus.Logger, metrics *observability.Metrics) *Recorder {
	if log == nil {
		log = logrus.New()
	}
	return &Recorder{store: store, log: log, metrics: metrics}
}

// Register subscribes the recorder to every catalogued event type
func (r *Recorder) Register(bus *events.Bus) {
	bus.SubscribeAll(SubscriberName, r)
}

// Handle implements events.Handler
func (r *Recorder) Handle(ctx context.Context, evt events.Event) error {
	entry := EntryFromEvent(evt)
	if err := r.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("record %s: %w", evt.Type, err)
	}
	r.metrics.RecordActivityEntry()

	if entry.Status == StatusDenied {
		r.log.WithFields(logrus.Fields{
			"tenant_id":   entry.TenantID.String(),
			"actor":       entry.Actor,
			"requirement": evt.Field("requirement"),
			"route":       evt.Field("route"),
		}).Warn("Permission denial recorded")
	}
	return nil
}

// EntryFromEvent maps an event onto an activity entry
func EntryFromEvent(evt events.Event) Entry {
	status := StatusSuccess
	if evt.Type == events.AccessDenied {
		status = StatusDenied
	}

	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	var metadata map[string]interface{}
	if len(evt.Payload) > 0 {
		metadata = make(map[string]interface{}, len(evt.Payload))
		for k, v := range evt.Payload {
			metadata[k] = v
		}
	}

	return Entry{
		ID:           evt.ID,
		TenantID:     evt.TenantID,
		EventType:    string(evt.Type),
		ResourceKind: evt.Type.Resource(),
		ResourceID:   evt.ResourceID,
		Actor:        evt.Actor,
		Status:       status,
		Metadata:     metadata,
		OccurredAt:   occurred,
	}
}

// PurgeJob returns a cron job that applies policy to store
func PurgeJob(store Store, policy RetentionPolicy, log *logrus.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		cutoff := time.Now().UTC().Add(-policy.MaxAge)
		n, err := store.Purge(ctx, cutoff)
		if err != nil {
			log.WithError(err).Error("Activity log purge failed")
			return
		}
		log.WithFields(logrus.Fields{
			"removed": n,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("Activity log purged")
	}
}
