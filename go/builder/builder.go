// Package builder provisions the cloud resources one user's pipeline runs
// on: the task topic, its dead-letter topic, the worker push subscription
// and the status table the monitor writes to. Provisioning is idempotent;
// rerunning converges existing resources instead of failing on them.
package builder

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"google.golang.org/api/googleapi"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/timer"
	"github.com/eocube/eocube/go/types"
)

const (
	// ackDeadline must exceed the worker task budget or the bus redelivers
	// tasks that are still running.
	ackDeadline = 600 * time.Second

	// maxDeliveryAttempts is how many times a task is retried before it
	// lands on the dead-letter topic.
	maxDeliveryAttempts = 5

	// monitorDataset holds the per-user status tables.
	monitorDataset = "eocube"
)

// statusSchema is the monitor table layout. The monitor inserts rows by
// these exact column names.
var statusSchema = bigquery.Schema{
	{Name: "timestamp", Type: bigquery.StringFieldType, Required: true},
	{Name: "job_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "task_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "storage_gs_path", Type: bigquery.StringFieldType, Required: true},
	{Name: "msg_type", Type: bigquery.StringFieldType, Required: true},
	{Name: "msg_payload", Type: bigquery.StringFieldType, Required: true},
	{Name: "dataset_name", Type: bigquery.StringFieldType, Required: true},
	{Name: "constellation", Type: bigquery.StringFieldType, Required: true},
}

// Params names the resources of one user's pipeline.
type Params struct {
	// Project is the cloud project everything lives in.
	Project string
	// UserID prefixes topic, subscription and table names so multiple
	// users can share a project.
	UserID string
	// PushEndpoint is the worker service URL the subscription pushes
	// tasks to. Empty provisions a pull subscription instead.
	PushEndpoint string
	// ServiceAccount is the email push deliveries authenticate as.
	ServiceAccount string
}

// TopicID is the task topic name.
func (p Params) TopicID() string {
	return p.UserID + "-eocube"
}

// DeadLetterTopicID is the dead-letter topic name.
func (p Params) DeadLetterTopicID() string {
	return p.UserID + "-eocube-dql"
}

// SubscriptionID is the worker subscription name.
func (p Params) SubscriptionID() string {
	return p.UserID + "-eocube"
}

// MonitorTable is the fully qualified status table name, suitable for the
// worker's MONITOR_TABLE environment variable.
func (p Params) MonitorTable() string {
	return p.Project + "." + monitorDataset + "." + p.UserID
}

// BQAdmin provisions BigQuery resources. Implemented by BigQueryAdmin.
type BQAdmin interface {
	// EnsureDataset creates the dataset if it does not exist.
	EnsureDataset(ctx context.Context, dataset string) error
	// EnsureTable creates the table with the given schema if it does not
	// exist. An existing table is left as is.
	EnsureTable(ctx context.Context, dataset, table string, schema bigquery.Schema) error
}

// Build provisions the bus and the monitor table for params.
func Build(ctx context.Context, psClient *pubsub.Client, bq BQAdmin, params Params) error {
	if params.Project == "" || params.UserID == "" {
		return skerr.Wrapf(types.ErrInvalidArgument, "project and user id are required")
	}
	defer timer.New("provisioning pipeline for " + params.UserID).Stop()

	topic, err := ensureTopic(ctx, psClient, params.TopicID())
	if err != nil {
		return skerr.Wrap(err)
	}
	dlq, err := ensureTopic(ctx, psClient, params.DeadLetterTopicID())
	if err != nil {
		return skerr.Wrap(err)
	}
	if err := ensureSubscription(ctx, psClient, topic, dlq, params); err != nil {
		return skerr.Wrap(err)
	}

	if err := bq.EnsureDataset(ctx, monitorDataset); err != nil {
		return skerr.Wrap(err)
	}
	if err := bq.EnsureTable(ctx, monitorDataset, params.UserID, statusSchema); err != nil {
		return skerr.Wrap(err)
	}

	sklog.Infof("Provisioned topic %s, dead-letter %s, subscription %s and monitor table %s.", params.TopicID(), params.DeadLetterTopicID(), params.SubscriptionID(), params.MonitorTable())
	return nil
}

func ensureTopic(ctx context.Context, client *pubsub.Client, id string) (*pubsub.Topic, error) {
	topic := client.Topic(id)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "checking topic %s", id)
	}
	if exists {
		return topic, nil
	}
	sklog.Infof("Creating topic %s.", id)
	topic, err = client.CreateTopic(ctx, id)
	if err != nil {
		return nil, skerr.Wrapf(err, "creating topic %s", id)
	}
	return topic, nil
}

func ensureSubscription(ctx context.Context, client *pubsub.Client, topic, dlq *pubsub.Topic, params Params) error {
	cfg := pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: ackDeadline,
		DeadLetterPolicy: &pubsub.DeadLetterPolicy{
			DeadLetterTopic:     dlq.String(),
			MaxDeliveryAttempts: maxDeliveryAttempts,
		},
	}
	if params.PushEndpoint != "" {
		cfg.PushConfig = pubsub.PushConfig{
			Endpoint: params.PushEndpoint,
			AuthenticationMethod: &pubsub.OIDCToken{
				ServiceAccountEmail: params.ServiceAccount,
			},
		}
	}

	sub := client.Subscription(params.SubscriptionID())
	exists, err := sub.Exists(ctx)
	if err != nil {
		return skerr.Wrapf(err, "checking subscription %s", params.SubscriptionID())
	}
	if !exists {
		sklog.Infof("Creating subscription %s.", params.SubscriptionID())
		if _, err := client.CreateSubscription(ctx, params.SubscriptionID(), cfg); err != nil {
			return skerr.Wrapf(err, "creating subscription %s", params.SubscriptionID())
		}
		return nil
	}
	update := pubsub.SubscriptionConfigToUpdate{
		AckDeadline:      cfg.AckDeadline,
		DeadLetterPolicy: cfg.DeadLetterPolicy,
	}
	if params.PushEndpoint != "" {
		update.PushConfig = &cfg.PushConfig
	}
	if _, err := sub.Update(ctx, update); err != nil {
		return skerr.Wrapf(err, "updating subscription %s", params.SubscriptionID())
	}
	return nil
}

// BigQueryAdmin implements BQAdmin against the real service.
type BigQueryAdmin struct {
	client *bigquery.Client
}

// NewBigQueryAdmin returns a BigQueryAdmin using the given client.
func NewBigQueryAdmin(client *bigquery.Client) *BigQueryAdmin {
	return &BigQueryAdmin{client: client}
}

// EnsureDataset implements BQAdmin.
func (a *BigQueryAdmin) EnsureDataset(ctx context.Context, dataset string) error {
	ds := a.client.Dataset(dataset)
	_, err := ds.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return skerr.Wrapf(err, "checking dataset %s", dataset)
	}
	sklog.Infof("Creating dataset %s.", dataset)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{}); err != nil {
		return skerr.Wrapf(err, "creating dataset %s", dataset)
	}
	return nil
}

// EnsureTable implements BQAdmin.
func (a *BigQueryAdmin) EnsureTable(ctx context.Context, dataset, table string, schema bigquery.Schema) error {
	t := a.client.Dataset(dataset).Table(table)
	_, err := t.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return skerr.Wrapf(err, "checking table %s.%s", dataset, table)
	}
	sklog.Infof("Creating table %s.%s.", dataset, table)
	if err := t.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return skerr.Wrapf(err, "creating table %s.%s", dataset, table)
	}
	return nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

var _ BQAdmin = (*BigQueryAdmin)(nil)
