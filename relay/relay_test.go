package relay

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
	"github.com/sciencecorp/synapse-cereplex-driver/wire"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	err   error
	block chan struct{}
}

func (f *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func newStartedRelay(t *testing.T, pub Publisher, cfg Config, registry *metric.MetricsRegistry) *Relay {
	t.Helper()
	r, err := New(cfg, Deps{Publisher: pub, Serial: "SN.0042", Registry: registry})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop(time.Second) })
	return r
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, Deps{Serial: "x"})
	assert.True(t, errors.IsInvalid(err))

	_, err = New(Config{}, Deps{Publisher: &fakePublisher{}})
	assert.True(t, errors.IsInvalid(err))
}

func TestSubjects(t *testing.T) {
	r, err := New(Config{}, Deps{Publisher: &fakePublisher{}, Serial: "SN.00 42*"})
	require.NoError(t, err)

	assert.Equal(t, "synapse.SN_00_42_.node.7", r.NodeSubject(7))
	assert.Equal(t, "synapse.SN_00_42_.status", r.StatusSubject())
}

func TestPublishNode(t *testing.T) {
	pub := &fakePublisher{}
	r := newStartedRelay(t, pub, Config{Workers: 1}, nil)

	rec := wire.Record{
		Type:      wire.SampleTypeBroadband,
		Timestamp: 1_000_000,
		BitWidth:  wire.BitWidth16,
		Samples:   [][]float64{{1, 2}, {3, 4}},
	}
	encoded, err := wire.Encode(rec)
	require.NoError(t, err)

	require.NoError(t, r.PublishNode(1, []byte("raw")))
	require.NoError(t, r.PublishNode(2, rec))
	require.NoError(t, r.PublishNode(2, &rec))

	err = r.PublishNode(3, 42)
	assert.ErrorIs(t, err, errors.ErrUnsupportedDataType)
	err = r.PublishNode(3, (*wire.Record)(nil))
	assert.ErrorIs(t, err, errors.ErrUnsupportedDataType)

	require.NoError(t, r.Stop(time.Second))

	msgs := pub.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "synapse.SN_0042.node.1", msgs[0].subject)
	assert.Equal(t, []byte("raw"), msgs[0].data)
	assert.Equal(t, "synapse.SN_0042.node.2", msgs[1].subject)
	assert.Equal(t, encoded, msgs[1].data)
	assert.Equal(t, encoded, msgs[2].data)
}

func TestPublishNode_CopiesBytes(t *testing.T) {
	pub := &fakePublisher{}
	r := newStartedRelay(t, pub, Config{Workers: 1}, nil)

	buf := []byte("abc")
	require.NoError(t, r.PublishNode(1, buf))
	buf[0] = 'z'
	require.NoError(t, r.Stop(time.Second))

	msgs := pub.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("abc"), msgs[0].data)
}

func TestPublishStatus(t *testing.T) {
	pub := &fakePublisher{}
	r := newStartedRelay(t, pub, Config{Workers: 1}, nil)

	require.NoError(t, r.PublishStatus(map[string]string{"state": "running"}))
	require.NoError(t, r.Stop(time.Second))

	msgs := pub.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "synapse.SN_0042.status", msgs[0].subject)
	assert.JSONEq(t, `{"state":"running"}`, string(msgs[0].data))

	assert.True(t, errors.IsInvalid(r.PublishStatus(func() {})))
}

func TestQueueFullDrops(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	r := newStartedRelay(t, pub, Config{Workers: 1, QueueSize: 1}, nil)

	// One item held by the blocked worker, one in the queue, then full.
	var full error
	for i := 0; i < 10 && full == nil; i++ {
		full = r.PublishNode(1, []byte{byte(i)})
	}
	assert.ErrorIs(t, full, errors.ErrQueueFull)
	assert.Positive(t, r.Stats().Dropped)

	close(pub.block)
}

func TestPublishMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pub := &fakePublisher{err: stderrors.New("nats: connection closed")}
	r := newStartedRelay(t, pub, Config{Workers: 1}, registry)

	require.NoError(t, r.PublishNode(5, []byte("x")))
	require.NoError(t, r.Stop(time.Second))

	counter := registry.CoreMetrics().RelayPublished.WithLabelValues("5", "error")
	assert.Equal(t, 1.0, testutil.ToFloat64(counter))
	assert.Equal(t, int64(1), r.Stats().Failed)
}
