// Package activitymap flattens wallet lifecycle events into a
// transport-agnostic record for audit logs and downstream consumers.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/goliatone/go-ledger-auth"
)

const (
	MetadataKeyInvocationID = "invocation_id"
	MetadataKeyOperation    = "operation"
	MetadataKeyStage        = "stage"
	MetadataKeyTxHash       = "tx_hash"
	MetadataKeyErrorKind    = "error_kind"
	MetadataKeyError        = "error"
)

const (
	defaultChannel    = "ledger-auth"
	defaultObjectType = "wallet"
	defaultActorID    = "anonymous"
)

// Normalized is the flattened shape of a lifecycle event.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(auth.LifecycleEvent) string
	now              func() time.Time
}

// Normalize converts a lifecycle event. The event's metadata is copied, never
// mutated.
func Normalize(event auth.LifecycleEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Username), options.actorFallback),
		Verb:       string(event.Type),
		ObjectType: options.objectType,
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel overrides the channel.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType overrides the object type.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object id extraction.
func WithObjectIDResolver(resolver func(auth.LifecycleEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event has no username.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the clock used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// resolveObjectID defaults to the wallet address, falling back to the
// transaction hash for events that carry no wallet.
func resolveObjectID(event auth.LifecycleEvent, resolver func(auth.LifecycleEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	if event.Wallet != nil && event.Wallet.Address != "" {
		return event.Wallet.Address
	}
	return event.TxHash.String()
}

func normalizeMetadata(event auth.LifecycleEvent) map[string]any {
	metadata := make(map[string]any, len(event.Metadata)+6)
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	set := func(key, value string) {
		if value != "" {
			metadata[key] = value
		}
	}
	set(MetadataKeyInvocationID, event.InvocationID)
	set(MetadataKeyOperation, string(event.Operation))
	set(MetadataKeyStage, string(event.Stage))
	set(MetadataKeyTxHash, event.TxHash.String())
	set(MetadataKeyErrorKind, string(event.ErrorKind))
	if event.Err != nil {
		metadata[MetadataKeyError] = auth.ErrorMessage(event.Err)
	}

	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
