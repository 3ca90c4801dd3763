package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/orders", TopicResourceName("p1", " orders "))
	assert.Equal(t, "projects/other/topics/x", TopicResourceName("p1", "projects/other/topics/x"))
	assert.Empty(t, TopicResourceName("", "orders"))
	assert.Empty(t, TopicResourceName("p1", ""))
}

func TestTopicNamesSkipsBlankAndDuplicates(t *testing.T) {
	assert.Equal(t, []string{"orders"}, topicNames(config.PubSubConfig{OrdersTopic: "orders", FilesTopic: "  "}))
	assert.Equal(t, []string{"events"}, topicNames(config.PubSubConfig{OrdersTopic: "events", FilesTopic: " events"}))
}

func TestCheckTopicsReportsEveryFailure(t *testing.T) {
	var looked []string
	c := &Client{
		projectID: "p1",
		topics:    []string{"orders", "files", "audit"},
		lookup: func(_ context.Context, fullName string) error {
			looked = append(looked, fullName)
			switch fullName {
			case "projects/p1/topics/files":
				return status.Error(codes.NotFound, "no such topic")
			case "projects/p1/topics/audit":
				return errors.New("deadline exceeded")
			}
			return nil
		},
	}

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTopicNotFound)
	assert.Contains(t, err.Error(), "files")
	assert.Contains(t, err.Error(), "deadline exceeded")
	assert.Len(t, looked, 3)
}

func TestPingSucceedsWhenTopicsExist(t *testing.T) {
	c := &Client{projectID: "p1", topics: []string{"orders"}, lookup: func(context.Context, string) error { return nil }}
	assert.NoError(t, c.Ping(context.Background()))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "o"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("orders"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
