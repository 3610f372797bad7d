package builder

import (
	"context"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/types"
)

func testParams() Params {
	return Params{
		Project:        "my-project",
		UserID:         "alice",
		PushEndpoint:   "https://worker.example.com/",
		ServiceAccount: "worker@my-project.iam.gserviceaccount.com",
	}
}

// newBusClient returns a client talking to an in-process fake bus.
func newBusClient(t *testing.T) *pubsub.Client {
	srv := pstest.NewServer()
	t.Cleanup(func() {
		require.NoError(t, srv.Close())
	})
	t.Setenv("PUBSUB_EMULATOR_HOST", srv.Addr)
	client, err := pubsub.NewClient(context.Background(), "my-project")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})
	return client
}

// fakeBQ records provisioning calls.
type fakeBQ struct {
	datasets []string
	tables   []string
	schema   bigquery.Schema
}

func (f *fakeBQ) EnsureDataset(_ context.Context, dataset string) error {
	f.datasets = append(f.datasets, dataset)
	return nil
}

func (f *fakeBQ) EnsureTable(_ context.Context, dataset, table string, schema bigquery.Schema) error {
	f.tables = append(f.tables, dataset+"."+table)
	f.schema = schema
	return nil
}

var _ BQAdmin = (*fakeBQ)(nil)

func TestBuild_ProvisionsEverything(t *testing.T) {
	ctx := context.Background()
	client := newBusClient(t)
	bq := &fakeBQ{}
	params := testParams()

	require.NoError(t, Build(ctx, client, bq, params))

	for _, id := range []string{"alice-eocube", "alice-eocube-dql"} {
		exists, err := client.Topic(id).Exists(ctx)
		require.NoError(t, err)
		assert.True(t, exists, id)
	}

	sub := client.Subscription("alice-eocube")
	exists, err := sub.Exists(ctx)
	require.NoError(t, err)
	require.True(t, exists)
	cfg, err := sub.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, 600*time.Second, cfg.AckDeadline)
	assert.Equal(t, "https://worker.example.com/", cfg.PushConfig.Endpoint)
	require.NotNil(t, cfg.DeadLetterPolicy)
	assert.Equal(t, "projects/my-project/topics/alice-eocube-dql", cfg.DeadLetterPolicy.DeadLetterTopic)
	assert.Equal(t, 5, cfg.DeadLetterPolicy.MaxDeliveryAttempts)

	assert.Equal(t, []string{"eocube"}, bq.datasets)
	assert.Equal(t, []string{"eocube.alice"}, bq.tables)
	wantColumns := []string{"timestamp", "job_id", "task_id", "storage_gs_path", "msg_type", "msg_payload", "dataset_name", "constellation"}
	require.Len(t, bq.schema, len(wantColumns))
	for i, field := range bq.schema {
		assert.Equal(t, wantColumns[i], field.Name)
		assert.Equal(t, bigquery.StringFieldType, field.Type)
		assert.True(t, field.Required, field.Name)
	}
}

func TestBuild_ConvergesExistingResources(t *testing.T) {
	ctx := context.Background()
	client := newBusClient(t)
	params := testParams()

	require.NoError(t, Build(ctx, client, &fakeBQ{}, params))

	// A second run with a new endpoint updates the subscription in place.
	params.PushEndpoint = "https://worker-v2.example.com/"
	require.NoError(t, Build(ctx, client, &fakeBQ{}, params))

	subs := 0
	it := client.Subscriptions(ctx)
	for {
		_, err := it.Next()
		if err != nil {
			break
		}
		subs++
	}
	assert.Equal(t, 1, subs)

	cfg, err := client.Subscription("alice-eocube").Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://worker-v2.example.com/", cfg.PushConfig.Endpoint)
	assert.Equal(t, 600*time.Second, cfg.AckDeadline)
}

func TestBuild_PullSubscriptionWithoutEndpoint(t *testing.T) {
	ctx := context.Background()
	client := newBusClient(t)
	params := testParams()
	params.PushEndpoint = ""
	params.ServiceAccount = ""

	require.NoError(t, Build(ctx, client, &fakeBQ{}, params))

	cfg, err := client.Subscription("alice-eocube").Config(ctx)
	require.NoError(t, err)
	assert.Empty(t, cfg.PushConfig.Endpoint)
	require.NotNil(t, cfg.DeadLetterPolicy)
	assert.Equal(t, 5, cfg.DeadLetterPolicy.MaxDeliveryAttempts)
}

func TestBuild_RequiresProjectAndUser(t *testing.T) {
	ctx := context.Background()
	client := newBusClient(t)

	params := testParams()
	params.Project = ""
	require.ErrorIs(t, Build(ctx, client, &fakeBQ{}, params), types.ErrInvalidArgument)

	params = testParams()
	params.UserID = ""
	require.ErrorIs(t, Build(ctx, client, &fakeBQ{}, params), types.ErrInvalidArgument)
}

func TestParams_Names(t *testing.T) {
	params := testParams()
	assert.Equal(t, "alice-eocube", params.TopicID())
	assert.Equal(t, "alice-eocube-dql", params.DeadLetterTopicID())
	assert.Equal(t, "alice-eocube", params.SubscriptionID())
	assert.Equal(t, "my-project.eocube.alice", params.MonitorTable())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&googleapi.Error{Code: http.StatusNotFound}))
	assert.True(t, isNotFound(skerr.Wrapf(&googleapi.Error{Code: http.StatusNotFound}, "checking")))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isNotFound(skerr.Fmt("not a service error")))
}
