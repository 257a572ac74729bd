package main

import (
	"context"
	"testing"
	"time"
)

// blockingDrainer holds Start open after cancellation until its queue flush
// is released, mimicking a drain loop with queued work left to write.
type blockingDrainer struct {
	flushed chan struct{}
}

func (d *blockingDrainer) Start(ctx context.Context) {
	<-ctx.Done()
	<-d.flushed
}

func TestStartDrainSignalsOnlyAfterFlush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := &blockingDrainer{flushed: make(chan struct{})}

	done := startDrain(ctx, d)

	cancel()
	select {
	case <-done:
		t.Fatal("drain signalled before the queue flushed")
	case <-time.After(50 * time.Millisecond):
	}

	close(d.flushed)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain never signalled after flush")
	}
}
