package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/angelmondragon/tipsplit-backend/pkg/config"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Client wraps a Pub/Sub v2 client bound to the settlement subscription.
type Client struct {
	client       *pubsub.Client
	subscription string
	ackDeadline  time.Duration
}

// ReceiveOptions tune how settlements are pulled. MaxExtension should cover a
// full settlement so a message is not redelivered while its transfers run.
type ReceiveOptions struct {
	Goroutines   int
	MaxExtension time.Duration
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscription    = errors.New("settlement subscription name is required")
)

// SubscriptionName expands a subscription ID into its resource name. Full
// names ("projects/<p>/subscriptions/<s>") are accepted as given.
func SubscriptionName(projectID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errNoSubscription
	}
	if strings.HasPrefix(name, "projects/") {
		parts := strings.Split(name, "/")
		if len(parts) != 4 || parts[1] == "" || parts[2] != "subscriptions" || parts[3] == "" {
			return "", fmt.Errorf("malformed subscription name %q", name)
		}
		return name, nil
	}
	if strings.Contains(name, "/") {
		return "", fmt.Errorf("malformed subscription id %q", name)
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", errProjectIDRequired
	}
	return "projects/" + projectID + "/subscriptions/" + name, nil
}

// NewClient connects to Pub/Sub and checks that the settlement subscription exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	subscription, err := SubscriptionName(gcp.ProjectID, cfg.SettlementSubscription)
	if err != nil {
		return nil, err
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, subscription: subscription}
	if err := c.checkSubscription(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"subscription":     subscription,
			"ack_deadline_sec": int(c.ackDeadline.Seconds()),
		}), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) checkSubscription(ctx context.Context) error {
	sub, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.subscription})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("settlement subscription %q does not exist", c.subscription)
		}
		return fmt.Errorf("checking settlement subscription %q: %w", c.subscription, err)
	}
	c.ackDeadline = time.Duration(sub.GetAckDeadlineSeconds()) * time.Second
	return nil
}

// SettlementSubscription returns the subscriber for settlement notifications
// with opts applied. Zero values keep the library defaults.
func (c *Client) SettlementSubscription(opts ReceiveOptions) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	sub := c.client.Subscriber(c.subscription)
	applyReceiveOptions(&sub.ReceiveSettings, opts)
	return sub
}

func applyReceiveOptions(settings *pubsub.ReceiveSettings, opts ReceiveOptions) {
	if opts.Goroutines > 0 {
		settings.NumGoroutines = opts.Goroutines
	}
	if opts.MaxExtension > 0 {
		settings.MaxExtension = opts.MaxExtension
	}
}

// AckDeadline is the subscription's ack deadline as read at startup.
func (c *Client) AckDeadline() time.Duration {
	if c == nil {
		return 0
	}
	return c.ackDeadline
}

// Ping verifies Pub/Sub connectivity by checking the settlement subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.checkSubscription(ctx)
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
