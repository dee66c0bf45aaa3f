package broadcaster

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exitwal "matchbook/infra/wal/exit"
)

func setup(t *testing.T, maxRetries uint32) (*exitwal.ExitWAL, *mocks.SyncProducer, *Broadcaster) {
	t.Helper()
	w, err := exitwal.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	p := mocks.NewSyncProducer(t, cfg)
	b := NewWithProducer(w, p, Config{Topic: "trades", MaxRetries: maxRetries}, nil)
	return w, p, b
}

func state(t *testing.T, w *exitwal.ExitWAL, id string) exitwal.ExitRecord {
	t.Helper()
	rec, err := w.Get(id)
	require.NoError(t, err)
	return rec
}

func TestReplayOnceAcksDelivered(t *testing.T) {
	w, p, b := setup(t, 3)
	require.NoError(t, w.PutNew("t-1", []byte(`{"txId":"t-1"}`)))
	require.NoError(t, w.PutNew("t-2", []byte(`{"txId":"t-2"}`)))

	p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"txId":"t-1"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	p.ExpectSendMessageAndSucceed()

	n, err := b.ReplayOnce()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, exitwal.StateAcked, state(t, w, "t-1").State)
	assert.Equal(t, exitwal.StateAcked, state(t, w, "t-2").State)

	// nothing left to send
	n, err = b.ReplayOnce()
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, b.Close())
}

func TestReplayOnceRetriesUntilCap(t *testing.T) {
	w, p, b := setup(t, 2)
	require.NoError(t, w.PutNew("t-1", []byte("x")))

	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	for i := 0; i < 3; i++ {
		n, err := b.ReplayOnce()
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	rec := state(t, w, "t-1")
	assert.Equal(t, exitwal.StateFailed, rec.State)
	assert.Equal(t, uint32(2), rec.Retries, "third pass skips the capped record")
	require.NoError(t, b.Close())
}

func TestReplayOnceRecoversAfterFailure(t *testing.T) {
	w, p, b := setup(t, 5)
	require.NoError(t, w.PutNew("t-1", []byte("x")))

	p.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	p.ExpectSendMessageAndSucceed()

	_, err := b.ReplayOnce()
	require.NoError(t, err)
	n, err := b.ReplayOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, exitwal.StateAcked, state(t, w, "t-1").State)
	require.NoError(t, b.Close())
}

func TestReplayOnceResendsInterruptedDelivery(t *testing.T) {
	w, p, b := setup(t, 3)
	require.NoError(t, w.PutNew("t-1", []byte("x")))
	// a crash after MarkSent leaves the record in SENT
	require.NoError(t, w.MarkSent("t-1"))

	p.ExpectSendMessageAndSucceed()

	n, err := b.ReplayOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, exitwal.StateAcked, state(t, w, "t-1").State)
	require.NoError(t, b.Close())
}
