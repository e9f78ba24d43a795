package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/eternisai/report-notifier/internal/logger"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const watchRestartDelay = 5 * time.Second

// CollectionWatch binds a collection to the status its new documents represent.
type CollectionWatch struct {
	Collection string
	Status     string
}

// CollectionWatcher treats a document created in a watched collection as the
// report moving to that collection's status, e.g. a document appearing in
// onProcess/{reportId} means the report is now "on process".
//
// Documents present when a listener (re)starts are ignored; only creations
// observed after the initial snapshot trigger notifications.
type CollectionWatcher struct {
	firestoreClient *firestore.Client
	watches         []CollectionWatch
	invoker         Invoker
	logger          *logger.Logger
	inflight        sync.WaitGroup
}

// NewCollectionWatcher creates a watcher for the given collections.
func NewCollectionWatcher(firestoreClient *firestore.Client, watches []CollectionWatch, invoker Invoker, logger *logger.Logger) *CollectionWatcher {
	return &CollectionWatcher{
		firestoreClient: firestoreClient,
		watches:         watches,
		invoker:         invoker,
		logger:          logger.WithComponent("report-trigger-firestore"),
	}
}

// Run listens on every watched collection until ctx is cancelled, then waits
// for in-flight invocations to finish.
func (w *CollectionWatcher) Run(ctx context.Context) {
	var listeners sync.WaitGroup
	for _, watch := range w.watches {
		listeners.Add(1)
		go func() {
			defer listeners.Done()
			w.watchLoop(ctx, watch)
		}()
	}

	listeners.Wait()
	w.inflight.Wait()
	w.logger.Info("firestore trigger stopped")
}

// watchLoop restarts the listener after failures until ctx is done.
func (w *CollectionWatcher) watchLoop(ctx context.Context, watch CollectionWatch) {
	log := w.logger.With(slog.String("collection", watch.Collection))

	for {
		err := w.listen(ctx, watch)
		if ctx.Err() != nil {
			return
		}

		log.Warn("collection listener stopped, restarting",
			slog.String("error", fmt.Sprint(err)),
			slog.Duration("delay", watchRestartDelay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRestartDelay):
		}
	}
}

func (w *CollectionWatcher) listen(ctx context.Context, watch CollectionWatch) error {
	it := w.firestoreClient.Collection(watch.Collection).Snapshots(ctx)
	defer it.Stop()

	w.logger.Info("watching collection",
		slog.String("collection", watch.Collection),
		slog.String("status", watch.Status))

	initial := true
	for {
		snap, err := it.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("snapshot listener for %s: %w", watch.Collection, err)
		}

		for _, event := range createdEvents(initial, snap.Changes, watch.Status) {
			w.dispatch(ctx, event)
		}
		initial = false
	}
}

// createdEvents returns one event per document a snapshot added. The initial
// snapshot lists documents that existed before the listener started, so it
// yields nothing. Modified and removed documents never notify.
func createdEvents(initial bool, changes []firestore.DocumentChange, status string) []ChangeEvent {
	if initial {
		return nil
	}

	var events []ChangeEvent
	for _, change := range changes {
		if change.Kind != firestore.DocumentAdded || change.Doc == nil || change.Doc.Ref == nil {
			continue
		}
		events = append(events, EventFromCreatedDocument(change.Doc.Ref.ID, change.Doc.Data(), status))
	}
	return events
}

func (w *CollectionWatcher) dispatch(ctx context.Context, event ChangeEvent) {
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()

		if _, err := w.invoker.Invoke(context.WithoutCancel(ctx), event); err != nil {
			w.logger.LogError(ctx, err, "report status trigger failed",
				slog.String("report_id", event.ReportID))
		}
	}()
}

// EventFromCreatedDocument builds the change event for a document created in
// a collection that represents status. The report had no prior status.
func EventFromCreatedDocument(reportID string, data map[string]any, status string) ChangeEvent {
	return ChangeEvent{
		ReportID: reportID,
		After: ReportSnapshot{
			Status:       status,
			UID:          stringField(data, "uid"),
			ServiceType:  stringField(data, "serviceType"),
			PlatformName: stringField(data, "platformName"),
		},
	}
}

func stringField(data map[string]any, key string) string {
	value, _ := data[key].(string)
	return value
}
