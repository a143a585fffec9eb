package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSPublisher_PublishesOnTypedSubject(t *testing.T) {
	url := startEmbeddedNATS(t)

	pub, err := NewNATSPublisher(NATSConfig{URL: url, SubjectPrefix: "test.catalog."})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })
	assert.Equal(t, "test.catalog.service.created", pub.Subject(TypeServiceCreated))

	sub, err := natsgo.Connect(url)
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	msgs := make(chan *natsgo.Msg, 1)
	_, err = sub.ChanSubscribe("test.catalog.>", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	evt := NewEvent(TypeServiceCreated, "svc-1", map[string]string{"name": "Panel Upgrade"})
	require.NoError(t, pub.Publish(context.Background(), evt))

	select {
	case msg := <-msgs:
		assert.Equal(t, "test.catalog.service.created", msg.Subject)
		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, evt.ID, got.ID)
		assert.Equal(t, "svc-1", got.Subject)
		assert.Equal(t, eventSource, got.Source)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestNewNATSPublisher_RequiresURL(t *testing.T) {
	_, err := NewNATSPublisher(NATSConfig{})
	assert.Error(t, err)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), NewEvent(TypeServiceDeleted, "x", nil)))
	assert.NoError(t, p.Close())
}

func startEmbeddedNATS(t *testing.T) string {
	t.Helper()

	srv, err := natssrv.NewServer(&natssrv.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go srv.Start()
	require.True(t, srv.ReadyForConnections(10*time.Second), "nats server did not become ready")

	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})
	return srv.ClientURL()
}
