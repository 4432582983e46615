package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/logstream/gateway/internal/broadcast"
	"github.com/logstream/gateway/internal/metrics"
	"github.com/logstream/gateway/internal/model"
)

func TestPublishBroadcastsBeforeWriterReceives(t *testing.T) {
	reg := broadcast.New(metrics.New())
	sub := reg.Register(broadcast.Filter{})
	defer reg.Deregister(sub.ID)

	writerCh := make(chan *model.Record, 1)
	p := New(reg, nil, writerCh, metrics.New())

	rec, _, ok := model.Normalize(model.Raw{Project: "p", Level: "info", Message: "m"})
	if !ok {
		t.Fatalf("expected normalization to succeed")
	}

	if err := p.Publish(context.Background(), &rec); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if _, ok := sub.Next(); !ok {
		t.Fatalf("expected subscriber to receive the broadcast record")
	}

	select {
	case got := <-writerCh:
		if got.ID != rec.ID {
			t.Fatalf("writer got a different record")
		}
	default:
		t.Fatalf("expected record to have been enqueued onto the writer channel")
	}
}

func TestPublishBlocksOnFullChannelUntilCancel(t *testing.T) {
	reg := broadcast.New(metrics.New())
	writerCh := make(chan *model.Record) // unbuffered: always full without a reader
	p := New(reg, nil, writerCh, metrics.New())

	rec, _, _ := model.Normalize(model.Raw{Project: "p", Level: "info", Message: "m"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := p.Publish(ctx, &rec)
	if err == nil {
		t.Fatalf("expected context deadline error when writer channel has no reader")
	}
}

func TestTryPublishReturnsFalseWhenChannelFull(t *testing.T) {
	reg := broadcast.New(metrics.New())
	writerCh := make(chan *model.Record, 1)
	p := New(reg, nil, writerCh, metrics.New())

	rec, _, _ := model.Normalize(model.Raw{Project: "p", Level: "info", Message: "m"})

	if !p.TryPublish(context.Background(), &rec) {
		t.Fatalf("expected first TryPublish to succeed (channel has capacity 1)")
	}
	if p.TryPublish(context.Background(), &rec) {
		t.Fatalf("expected second TryPublish to fail, channel is now full")
	}
}
