package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const project = "corpus-test"

func newFake(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, project,
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestPublishDeliversJSON(t *testing.T) {
	t.Parallel()

	srv, client := newFake(t)
	ctx := context.Background()
	_, err := client.CreateTopic(ctx, "corpus-exports")
	require.NoError(t, err)

	p := New(client, nil)
	defer p.Close()
	id, err := p.Publish(ctx, "corpus-exports", map[string]any{"uri": "gs://b/corpus.vert", "documents": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"uri":"gs://b/corpus.vert","documents":3}`, string(msgs[0].Data))
}

func TestPublishUnknownTopic(t *testing.T) {
	t.Parallel()

	_, client := newFake(t)
	p := New(client, nil)
	defer p.Close()
	_, err := p.Publish(context.Background(), "missing", "x")
	assert.Error(t, err)
}

func TestPublishValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil).Publish(context.Background(), "t", "x")
	assert.Error(t, err)

	_, client := newFake(t)
	_, err = New(client, nil).Publish(context.Background(), "", "x")
	assert.Error(t, err)
}

func TestCarrier(t *testing.T) {
	t.Parallel()

	c := carrier{}
	var _ propagation.TextMapCarrier = c
	c.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
