// Package pubsub wraps the Google Pub/Sub v2 client used by the outbox relay.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")

	// ErrTopicNotFound is returned when a configured topic does not exist.
	ErrTopicNotFound = errors.New("pubsub topic does not exist")
)

// topicLookup returns nil when the fully qualified topic exists.
type topicLookup func(ctx context.Context, fullName string) error

// Client is the relay's Pub/Sub connection plus the topics it must reach.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
	lookup    topicLookup
}

// NewClient connects and fails unless every configured topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:    psClient,
		projectID: projectID,
		topics:    topics,
		lookup:    adminLookup(psClient),
	}
	if err := c.checkTopics(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project_id": projectID, "topics": topics}), "pubsub client initialized")
	}
	return c, nil
}

func adminLookup(client *pubsub.Client) topicLookup {
	return func(ctx context.Context, fullName string) error {
		_, err := client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
		return err
	}
}

// topicNames returns the configured topics, trimmed and without duplicates.
func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	seen := map[string]bool{}
	for _, name := range []string{cfg.OrdersTopic, cfg.FilesTopic} {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		names = append(names, trimmed)
	}
	return names
}

// checkTopics looks up every topic and reports all failures together.
func (c *Client) checkTopics(ctx context.Context) error {
	var errs error
	for _, name := range c.topics {
		errs = multierr.Append(errs, c.checkTopic(ctx, name))
	}
	return errs
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	fullName := TopicResourceName(c.projectID, name)
	if fullName == "" {
		return fmt.Errorf("topic %q not configured", name)
	}
	err := c.lookup(ctx, fullName)
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%w: %s", ErrTopicNotFound, name)
	default:
		return fmt.Errorf("checking topic %q: %w", name, err)
	}
}

// Publisher returns a publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := TopicResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// Ping re-checks that the configured topics are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.lookup == nil {
		return errNotInitialized
	}
	return c.checkTopics(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// TopicResourceName expands a bare topic id into projects/<p>/topics/<id>.
func TopicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/topics/" + n
}
