// Package syncworker is the Pub/Sub-triggered Cloud Function entrypoint
// that drives one SyncPipeline.SyncUser pass per message, the way the
// teacher's functions/enricher and functions/fit-parser-handler each
// wrap one domain operation behind functions-framework-go (spec
// §4.10, SPEC_FULL.md DOMAIN STACK functions-framework-go row).
package syncworker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	"github.com/trailtime/core/pkg/bootstrap"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	// CloudEvent handler for the EventArc/Pub/Sub trigger.
	functions.CloudEvent("SyncUser", SyncUser)

	// HTTP handler for a push subscription, returning 500 on failure so
	// Pub/Sub retries instead of silently dropping the message.
	functions.HTTP("SyncUserHTTP", SyncUserHTTP)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	if svc != nil {
		return svc, nil
	}
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

// syncRequest is the payload this function expects on its topic: one
// user to sync, and whether to bypass MinSyncIntervalHours (used by
// the connect flow's first sync).
type syncRequest struct {
	UserID string `json:"user_id"`
	Force  bool   `json:"force"`
}

func parseSyncRequest(data []byte) (syncRequest, error) {
	var req syncRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return syncRequest{}, fmt.Errorf("syncworker: decode payload: %w", err)
	}
	if req.UserID == "" {
		return syncRequest{}, fmt.Errorf("syncworker: payload missing user_id")
	}
	return req, nil
}

// SyncUser is the EventArc/CloudEvent entry point: one message, one
// SyncPipeline.SyncUser run.
func SyncUser(ctx context.Context, e cloudevents.Event) error {
	s, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("syncworker: service init: %w", err)
	}
	return runSyncEvent(ctx, s, e)
}

func runSyncEvent(ctx context.Context, s *bootstrap.Service, e cloudevents.Event) error {
	req, err := parseSyncRequest(e.Data())
	if err != nil {
		return err
	}

	logger := s.Logger.With("user_id", req.UserID, "event_id", e.ID())
	logger.Info("sync run starting")

	result, err := s.Pipeline.SyncUser(ctx, req.UserID, req.Force)
	if err != nil {
		logger.Error("sync run failed", "error", err)
		return fmt.Errorf("syncworker: sync user %s: %w", req.UserID, err)
	}

	logger.Info("sync run finished",
		"status", result.Status,
		"fetched", result.Fetched,
		"saved", result.Saved,
		"splits_synced", result.SplitsSynced)
	return nil
}

// SyncUserHTTP handles a Pub/Sub push subscription: it accepts either a
// native CloudEvents HTTP request or Pub/Sub's push-wrapper JSON shape,
// falling back to the latter exactly as the teacher's
// EnrichActivityHTTP does for its lag-retry topic.
func SyncUserHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s, err := initService(ctx)
	if err != nil {
		http.Error(w, fmt.Sprintf("service init failed: %v", err), http.StatusInternalServerError)
		return
	}

	event, err := cehttp.NewEventFromHTTPRequest(r)
	if err != nil {
		event, err = parseCloudEventFromPubSubPush(r)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to parse event: %v", err), http.StatusBadRequest)
			return
		}
	}

	if err := runSyncEvent(ctx, s, *event); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// parseCloudEventFromPubSubPush unwraps a Pub/Sub push message's
// {"message":{"data": base64 ...}} envelope into the CloudEvent (or raw
// JSON payload) it carries.
func parseCloudEventFromPubSubPush(r *http.Request) (*cloudevents.Event, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("syncworker: read push body: %w", err)
	}
	defer r.Body.Close()

	var pushMsg struct {
		Message struct {
			Data        []byte            `json:"data"`
			Attributes  map[string]string `json:"attributes"`
			MessageID   string            `json:"messageId"`
			PublishTime string            `json:"publishTime"`
		} `json:"message"`
		Subscription string `json:"subscription"`
	}
	if err := json.Unmarshal(body, &pushMsg); err != nil {
		return nil, fmt.Errorf("syncworker: unmarshal push envelope: %w", err)
	}
	if len(pushMsg.Message.Data) == 0 {
		return nil, fmt.Errorf("syncworker: push envelope has no data")
	}

	var e cloudevents.Event
	if err := json.Unmarshal(pushMsg.Message.Data, &e); err == nil && e.Type() != "" {
		return &e, nil
	}

	e = cloudevents.NewEvent()
	e.SetID(pushMsg.Message.MessageID)
	e.SetSource("trailtime/sync-worker")
	e.SetType("sync.requested")
	if err := e.SetData(cloudevents.ApplicationJSON, json.RawMessage(pushMsg.Message.Data)); err != nil {
		return nil, fmt.Errorf("syncworker: set event data: %w", err)
	}
	for k, v := range pushMsg.Message.Attributes {
		e.SetExtension(k, v)
	}
	return &e, nil
}
