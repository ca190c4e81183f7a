package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/diwise/hyperstate/pkg/hyperstate"
)

// Notifier posts a notification to a subscriber endpoint for every change
// made to the entity graph through the api. Notifications are delivered in
// order, one at a time, on a background worker.
type Notifier interface {
	Start() error
	Stop() error

	EntityCreated(ctx context.Context, e hyperstate.Entity)
	EntityUpdated(ctx context.Context, e hyperstate.Entity)
	EntityDeleted(ctx context.Context, path string)
}

const (
	EntityCreated string = "EntityCreated"
	EntityUpdated string = "EntityUpdated"
	EntityDeleted string = "EntityDeleted"
)

type Notification struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Path       string               `json:"path"`
	NotifiedAt string               `json:"notifiedAt"`
	Data       *hyperstate.Document `json:"data,omitempty"`
}

var tracer = otel.Tracer("hyperstate/notifier")

type action func()

type notifier struct {
	mu       sync.RWMutex
	started  bool
	endpoint string

	httpClient http.Client
	queue      chan action
}

func NewNotifier(ctx context.Context, endpoint string) (Notifier, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("a notification endpoint is required")
	}

	return &notifier{
		endpoint: endpoint,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (n *notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return fmt.Errorf("already started")
	}

	n.started = true
	n.queue = make(chan action, 32)

	go n.run(n.queue)

	return nil
}

// Stop waits for the notifications queued so far to be delivered
func (n *notifier) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		n.started = false

		resultChan := make(chan bool)
		queue := n.queue

		queue <- func() {
			// closing the queue makes the worker return once this action is done
			close(queue)
			resultChan <- true
		}

		<-resultChan
	}
	return nil
}

func (n *notifier) EntityCreated(ctx context.Context, e hyperstate.Entity) {
	n.enqueue(ctx, EntityCreated, e.Path(), e)
}

func (n *notifier) EntityUpdated(ctx context.Context, e hyperstate.Entity) {
	n.enqueue(ctx, EntityUpdated, e.Path(), e)
}

func (n *notifier) EntityDeleted(ctx context.Context, path string) {
	n.enqueue(ctx, EntityDeleted, path, nil)
}

func (n *notifier) enqueue(ctx context.Context, notificationType, path string, e hyperstate.Entity) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.started {
		return
	}

	var err error

	logger := logging.GetFromContext(ctx)

	notification, err := newNotification(notificationType, path, e)
	if err != nil {
		logger.Error("failed to create notification", "err", err.Error())
		return
	}

	ctx, span := tracer.Start(
		tracing.ExtractHeaders(context.Background(), tracing.InjectHeaders(ctx)),
		"post",
	)

	n.queue <- func() {
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		err = n.post(ctx, notification)
		if err != nil {
			logger.Error("failed to post notification", "err", err.Error())
		}
	}
}

func newNotification(notificationType, path string, e hyperstate.Entity) (*Notification, error) {
	notification := &Notification{
		ID:         "urn:hyperstate:notification:" + uuid.NewString(),
		Type:       notificationType,
		Path:       path,
		NotifiedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}

	if e != nil {
		doc, err := hyperstate.NewDocument(e, nil)
		if err != nil {
			return nil, err
		}
		notification.Data = doc
	}

	return notification, nil
}

func (n *notifier) post(ctx context.Context, notification *Notification) error {
	body, err := json.MarshalIndent(notification, "", " ")
	if err != nil {
		return fmt.Errorf("marshalling error (%w)", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("unable to create new request (%w)", err)
	}

	req.Header.Add("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request (%w)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("subscriber responded with status code %d", resp.StatusCode)
	}

	return nil
}

func (n *notifier) run(queue chan action) {
	// repeat until the queue is closed
	for action := range queue {
		if action == nil {
			return
		}

		action()
	}
}

type discard struct{}

// Discard returns a notifier that drops every notification
func Discard() Notifier {
	return discard{}
}

func (discard) Start() error                                     { return nil }
func (discard) Stop() error                                      { return nil }
func (discard) EntityCreated(context.Context, hyperstate.Entity) {}
func (discard) EntityUpdated(context.Context, hyperstate.Entity) {}
func (discard) EntityDeleted(context.Context, string)            {}
