package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/sengp/missionbox/internal/broker/messages"
)

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type notificationSink interface {
	Push(ctx context.Context, userID string, payload []byte) error
}

type notifyWorkerOpts struct {
	httpAddr string
	topic    string
	group    string

	onListen func(httpAddr string)
}

type notifyWorker struct {
	sink      notificationSink
	processed atomic.Int64
	dropped   atomic.Int64
}

// handle раскладывает событие по очередям получателей. Экспедитор
// получает уведомление всегда, GP — когда уже назначен.
func (w *notifyWorker) handle(ctx context.Context, value []byte) error {
	var m messages.MissionStatusChanged
	if err := json.Unmarshal(value, &m); err != nil {
		// Битое сообщение ретраить бессмысленно.
		w.dropped.Add(1)
		slog.Warn("skipping malformed status event", "err", err)
		return nil
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}

	if err := w.sink.Push(ctx, m.ExpediteurID.String(), payload); err != nil {
		return errors.Wrap(err, "push expediteur notification")
	}
	if m.GPID != nil {
		if err := w.sink.Push(ctx, m.GPID.String(), payload); err != nil {
			return errors.Wrap(err, "push gp notification")
		}
	}

	w.processed.Add(1)
	return nil
}

func (w *notifyWorker) stats() map[string]int64 {
	return map[string]int64{
		"processed": w.processed.Load(),
		"dropped":   w.dropped.Load(),
	}
}

func runNotifyWorker(ctx context.Context, opts notifyWorkerOpts, consumer kafkaConsumer, sink notificationSink) error {
	w := &notifyWorker{sink: sink}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, opts, w)
	}()

	consumeErr := make(chan error, 1)
	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.group)
		consumeErr <- consumer.Consume(ctx, func(_key, value []byte) error {
			return w.handle(ctx, value)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-consumeErr:
		return err
	case err := <-httpErr:
		return err
	}
}

func runWorkerHTTPServer(ctx context.Context, opts notifyWorkerOpts, w *notifyWorker) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Get("/stats", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(w.stats())
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("worker HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
