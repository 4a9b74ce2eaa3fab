package nats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqqz/whaleflow-sub000/service/record"
)

func TestForward_PublishesUntilClose(t *testing.T) {
	pub := NewMockPublisher()
	ch := make(chan *record.Record, 4)
	ch <- &record.Record{ID: "a", Network: "bitcoin"}
	ch <- &record.Record{ID: "b", Network: "ethereum"}
	close(ch)

	Forward(context.Background(), pub, ch, nil, nil)

	require.Equal(t, 2, pub.GetPublishedRecordCount())
	assert.Len(t, pub.GetPublishedRecordsForNetwork("bitcoin"), 1)
	assert.Len(t, pub.GetPublishedRecordsForNetwork("ethereum"), 1)
}

func TestForward_SkipsFailedPublishes(t *testing.T) {
	pub := NewMockPublisher()
	pub.SetPublishError(fmt.Errorf("nats down"))

	ch := make(chan *record.Record, 2)
	ch <- &record.Record{ID: "a", Network: "bitcoin"}
	close(ch)

	Forward(context.Background(), pub, ch, nil, nil)
	assert.Zero(t, pub.GetPublishedRecordCount())
}

func TestForward_StopsOnContextCancel(t *testing.T) {
	pub := NewMockPublisher()
	ch := make(chan *record.Record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Forward(ctx, pub, ch, nil, nil)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward did not stop on cancel")
	}
}
