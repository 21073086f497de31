package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/nftscan/internal/core/domain"
)

// DefaultChannel carries invalidation signals between replicas.
const DefaultChannel = "nftscan:invalidate"

// Client wraps Redis operations for the invalidation bus.
type Client struct {
	rdb     *redis.Client
	channel string
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &Client{rdb: rdb, channel: channel}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func seenKey(txHash string) string {
	return fmt.Sprintf("nftscan:seen_tx:%s", domain.NormalizeAddress(txHash))
}

// MarkSeen records that the invalidation for txHash was published. It
// returns false when another replica already did, so each confirmed
// transaction is broadcast once.
func (c *Client) MarkSeen(ctx context.Context, txHash string, ttl time.Duration) (bool, error) {
	if txHash == "" {
		return true, nil
	}
	ok, err := c.rdb.SetNX(ctx, seenKey(txHash), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Publish broadcasts an invalidation to every subscribed replica.
func (c *Client) Publish(ctx context.Context, inv domain.Invalidation) error {
	payload, err := EncodeInvalidation(inv)
	if err != nil {
		return err
	}
	if err := c.rdb.Publish(ctx, c.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Subscribe delivers every invalidation published on the channel to handle
// until ctx is done. Malformed payloads are logged and skipped.
func (c *Client) Subscribe(ctx context.Context, handle func(domain.Invalidation)) error {
	sub := c.rdb.Subscribe(ctx, c.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting readiness
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.channel, err)
	}
	slog.Info("Subscribed to invalidations", "channel", c.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription %s closed", c.channel)
			}
			inv, err := DecodeInvalidation(msg.Payload)
			if err != nil {
				slog.Warn("Dropping malformed invalidation", "channel", msg.Channel, "error", err)
				continue
			}
			handle(inv)
		}
	}
}

// EncodeInvalidation renders the wire payload.
func EncodeInvalidation(inv domain.Invalidation) (string, error) {
	inv.Address = domain.NormalizeAddress(inv.Address)
	b, err := json.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("encode invalidation: %w", err)
	}
	return string(b), nil
}

// DecodeInvalidation parses and validates a wire payload.
func DecodeInvalidation(payload string) (domain.Invalidation, error) {
	var inv domain.Invalidation
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		return domain.Invalidation{}, fmt.Errorf("decode invalidation: %w", err)
	}
	switch inv.Kind {
	case "", domain.QueryOwned, domain.QueryListings:
	default:
		return domain.Invalidation{}, fmt.Errorf("unknown query kind %q", inv.Kind)
	}
	inv.Address = domain.NormalizeAddress(inv.Address)
	return inv, nil
}
