package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/utils"
)

// maxSlackText stays under Slack's recommended message length
const maxSlackText = 4000

// SlackNotifier posts alert batches to a channel
type SlackNotifier struct {
	client   *slack.Client
	channel  string
	resolver *ChannelResolver
	logger   *zap.Logger
}

// NewSlackNotifier creates a Slack notifier. channel may be an ID or a name.
func NewSlackNotifier(client *slack.Client, channel string, logger *zap.Logger) *SlackNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackNotifier{
		client:   client,
		channel:  channel,
		resolver: NewChannelResolver(client, logger),
		logger:   logger,
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

// Notify implements Notifier
func (s *SlackNotifier) Notify(ctx context.Context, batch []alerts.Alert) error {
	channelID, err := s.resolver.ResolveChannel(ctx, s.channel)
	if err != nil {
		return fmt.Errorf("failed to resolve channel '%s': %w", s.channel, err)
	}

	_, ts, err := s.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(utils.Truncate(FormatMessage(batch), maxSlackText), false),
	)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	s.logger.Info("Posted alerts to Slack",
		zap.String("channel", channelID),
		zap.String("ts", ts),
		zap.Int("alerts", len(batch)),
	)
	return nil
}

// ========== Channel resolution ==========

// ChannelResolver resolves channel names to IDs
type ChannelResolver struct {
	client *slack.Client
	logger *zap.Logger
	cache  map[string]string // name -> id
	mu     sync.RWMutex
}

// NewChannelResolver creates a new channel resolver
func NewChannelResolver(client *slack.Client, logger *zap.Logger) *ChannelResolver {
	return &ChannelResolver{
		client: client,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// ResolveChannel resolves a channel name (#alerts or alerts) or ID to an ID
func (r *ChannelResolver) ResolveChannel(ctx context.Context, nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", fmt.Errorf("channel name/ID is empty")
	}
	if isChannelID(nameOrID) {
		return nameOrID, nil
	}

	channelName := strings.TrimPrefix(nameOrID, "#")

	r.mu.RLock()
	if id, ok := r.cache[channelName]; ok {
		r.mu.RUnlock()
		return id, nil
	}
	r.mu.RUnlock()

	id, err := r.lookupChannel(ctx, channelName)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[channelName] = id
	r.mu.Unlock()

	r.logger.Info("Resolved Slack channel", zap.String("name", channelName), zap.String("id", id))
	return id, nil
}

// lookupChannel searches public channels, then private ones
func (r *ChannelResolver) lookupChannel(ctx context.Context, name string) (string, error) {
	for _, kind := range []string{"public_channel", "private_channel"} {
		channels, _, err := r.client.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			ExcludeArchived: true,
			Limit:           1000,
			Types:           []string{kind},
		})
		if err != nil {
			if kind == "public_channel" {
				return "", fmt.Errorf("failed to list public channels: %w", err)
			}
			r.logger.Warn("Failed to list private channels", zap.Error(err))
			break
		}
		for _, channel := range channels {
			if channel.Name == name {
				return channel.ID, nil
			}
		}
	}
	return "", fmt.Errorf("channel '%s' not found", name)
}

// isChannelID checks if a string looks like a Slack channel ID:
// C followed by upper-case alphanumerics
func isChannelID(s string) bool {
	if len(s) < 9 || len(s) > 15 {
		return false
	}
	if !strings.HasPrefix(s, "C") {
		return false
	}
	for _, c := range s[1:] {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
