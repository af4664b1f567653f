package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWorker struct {
	name     string
	startErr error
	events   *[]string
}

func (w *fakeWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	*w.events = append(*w.events, "start:"+w.name)
	return nil
}

func (w *fakeWorker) Stop() {
	*w.events = append(*w.events, "stop:"+w.name)
}

func (w *fakeWorker) Name() string { return w.name }

func TestManagerStartStopOrder(t *testing.T) {
	var events []string
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", events: &events})
	m.Register(&fakeWorker{name: "b", events: &events})

	require.NoError(t, m.StartAll(context.Background()))
	m.StopAll()

	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, events)
}

func TestManagerStartFailureStopsStarted(t *testing.T) {
	var events []string
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", events: &events})
	m.Register(&fakeWorker{name: "b", startErr: errors.New("boom"), events: &events})
	m.Register(&fakeWorker{name: "c", events: &events})

	err := m.StartAll(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker b")
	assert.Equal(t, []string{"start:a", "stop:a"}, events)
}

func TestManagerStopAllIdempotent(t *testing.T) {
	var events []string
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", events: &events})

	require.NoError(t, m.StartAll(context.Background()))
	m.StopAll()
	m.StopAll()

	assert.Equal(t, []string{"start:a", "stop:a"}, events)
}
