package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination"
	"github.com/stretchr/testify/require"
)

func TestDestination_PublishRecordsMessages(t *testing.T) {
	d := New("sales")
	require.NoError(t, d.Validate(context.Background()))

	receipt, err := d.Publish(context.Background(), "k1", []byte("one"))
	require.NoError(t, err)
	require.Equal(t, destination.Receipt{Partition: "0", Sequence: "1"}, receipt)

	receipt, err = d.Publish(context.Background(), "k2", []byte("two"))
	require.NoError(t, err)
	require.Equal(t, "2", receipt.Sequence)

	require.Equal(t, []Message{{Key: "k1", Payload: []byte("one")}, {Key: "k2", Payload: []byte("two")}}, d.Messages())
	require.Equal(t, 1, d.ValidateCalls())
}

func TestDestination_ScriptedFailures(t *testing.T) {
	errBusy := errors.New("busy")

	d := New("sales")
	d.FailNext(errBusy, nil, errBusy)

	_, err := d.Publish(context.Background(), "a", nil)
	require.ErrorIs(t, err, errBusy)

	_, err = d.Publish(context.Background(), "b", nil)
	require.NoError(t, err)

	_, err = d.Publish(context.Background(), "c", nil)
	require.ErrorIs(t, err, errBusy)

	_, err = d.Publish(context.Background(), "d", nil)
	require.NoError(t, err)

	require.Equal(t, 4, d.Attempts())
	require.Len(t, d.Messages(), 2)
}

func TestDestination_Missing(t *testing.T) {
	d := New("sales")
	d.SetExists(false)

	require.ErrorIs(t, d.Validate(context.Background()), destination.ErrDestinationNotFound)

	_, err := d.Publish(context.Background(), "a", nil)
	require.ErrorIs(t, err, destination.ErrDestinationNotFound)
}

func TestDestination_OnPublishAndClose(t *testing.T) {
	d := New("sales")

	var seen []string
	d.OnPublish(func(m Message) { seen = append(seen, m.Key) })

	_, err := d.Publish(context.Background(), "a", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, seen)

	require.NoError(t, d.Close())
	require.True(t, d.Closed())
}
