package sync

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"
)

// EventSink publishes a domain event (sync.completed, profile.updated,
// ...) for other services to consume. Publish failures are logged and
// swallowed by the pipeline, mirroring the teacher's best-effort
// outbound-event posture.
type EventSink interface {
	Publish(ctx context.Context, eventType string, payload map[string]interface{}) error
}

// EventsTopicID is the Pub/Sub topic sync events are published to.
const EventsTopicID = "trailtime-sync-events"

// EventSource is the CloudEvents source attribute stamped on every
// event this service publishes.
const EventSource = "trailtime/sync-pipeline"

// PubSubEventSink publishes CloudEvents-wrapped sync events to Google
// Cloud Pub/Sub, grounded on the teacher's PubSubAdapter.
type PubSubEventSink struct {
	client  *pubsub.Client
	topicID string
}

// NewPubSubEventSink builds a sink bound to an already-initialised
// Pub/Sub client and topic.
func NewPubSubEventSink(client *pubsub.Client, topicID string) *PubSubEventSink {
	if topicID == "" {
		topicID = EventsTopicID
	}
	return &PubSubEventSink{client: client, topicID: topicID}
}

func (s *PubSubEventSink) Publish(ctx context.Context, eventType string, payload map[string]interface{}) error {
	e, err := buildCloudEvent(eventType, payload)
	if err != nil {
		return err
	}

	data, err := e.MarshalJSON()
	if err != nil {
		return fmt.Errorf("sync: marshal cloud event: %w", err)
	}

	topic := s.client.Topic(s.topicID)
	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"ce-type": eventType},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("sync: publish event %s: %w", eventType, err)
	}
	return nil
}

// LogEventSink logs events instead of publishing them, used for local
// development in place of a real Pub/Sub client (teacher's LogPublisher).
type LogEventSink struct {
	Logf func(format string, args ...interface{})
}

func (s *LogEventSink) Publish(ctx context.Context, eventType string, payload map[string]interface{}) error {
	logf := s.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	e, err := buildCloudEvent(eventType, payload)
	if err != nil {
		return err
	}
	data, err := e.MarshalJSON()
	if err != nil {
		return err
	}
	logf("[LogEventSink] %s: %s", eventType, string(data))
	return nil
}

func buildCloudEvent(eventType string, payload map[string]interface{}) (event.Event, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetType(eventType)
	e.SetSource(EventSource)
	if err := e.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return event.Event{}, fmt.Errorf("sync: set cloud event data: %w", err)
	}
	return e, nil
}
