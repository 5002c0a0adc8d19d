package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/rcagov/internal/types"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func sampleMessage(t *testing.T) *Message {
	msg, err := NewReportEvent(&types.Report{
		ID:               "rcr-42",
		ScopeID:          "sd-9",
		FailureSignature: "deadbeef",
		SeverityPriority: types.PriorityP0,
		RecurrenceCount:  1,
		Confidence:       70,
	}, true)
	require.NoError(t, err)
	return msg
}

func TestNATSPublisher(t *testing.T) {
	server := startTestNATSServer(t)

	sub, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	s, err := sub.SubscribeSync("rca.report.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := NewNATSPublisher(server.ClientURL(), "rca")
	require.NoError(t, err)
	defer pub.Close()

	msg := sampleMessage(t)
	require.NoError(t, pub.Publish(context.Background(), msg))

	got, err := s.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "rca.report.created", got.Subject)

	var decoded Message
	require.NoError(t, json.Unmarshal(got.Data, &decoded))
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, "rcr-42", decoded.EntityID)

	data, err := decoded.GetReportData()
	require.NoError(t, err)
	assert.Equal(t, types.PriorityP0, data.Priority)
}

func TestNATSPublisherFromConnLeavesConnOpen(t *testing.T) {
	server := startTestNATSServer(t)

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	pub := NewNATSPublisherFromConn(nc, "rca")
	require.NoError(t, pub.Close())
	assert.True(t, nc.IsConnected())
}

func TestRedisPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ps := client.Subscribe(ctx, "rca.report.created")
	defer ps.Close()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	pub, err := NewRedisPublisher(mr.Addr(), "rca")
	require.NoError(t, err)
	defer pub.Close()

	msg := sampleMessage(t)
	require.NoError(t, pub.Publish(ctx, msg))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := ps.ReceiveMessage(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, "rca.report.created", got.Channel)

	var decoded Message
	require.NoError(t, json.Unmarshal([]byte(got.Payload), &decoded))
	assert.Equal(t, msg.ID, decoded.ID)
}

func TestRedisPublisherUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisPublisher(addr, "rca")
	assert.Error(t, err)
}

func TestRedisPublisherFromClientLeavesClientOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	pub := NewRedisPublisherFromClient(client, "rca")
	require.NoError(t, pub.Publish(ctx, sampleMessage(t)))
	require.NoError(t, pub.Close())
	assert.NoError(t, client.Ping(ctx).Err())
}

// Service and CLI callers hand Publish a context without a deadline.
func TestNATSPublisherFromConfigWithoutDeadline(t *testing.T) {
	server := startTestNATSServer(t)

	sub, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer sub.Close()
	s, err := sub.SubscribeSync("rca.report.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	cfg := DefaultConfig()
	cfg.Backend = BackendNATS
	cfg.NATSURL = server.ClientURL()
	cfg.FlushTimeout = 2 * time.Second

	pub, err := New(cfg)
	require.NoError(t, err)
	defer pub.Close()

	natsPub, ok := pub.(*NATSPublisher)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, natsPub.flushTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 3; i++ {
		require.NoError(t, pub.Publish(ctx, sampleMessage(t)))
	}
	for i := 0; i < 3; i++ {
		_, err := s.NextMsg(2 * time.Second)
		require.NoError(t, err)
	}
}

func TestNATSPublisherKeepsCallerDeadline(t *testing.T) {
	server := startTestNATSServer(t)

	pub, err := NewNATSPublisher(server.ClientURL(), "rca")
	require.NoError(t, err)
	defer pub.Close()

	// A zero timeout leaves the default in place.
	assert.Equal(t, DefaultFlushTimeout, pub.WithFlushTimeout(0).flushTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pub.Publish(ctx, sampleMessage(t)))
}
