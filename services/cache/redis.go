package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hamzaf287/focus-app/core"
	"github.com/hamzaf287/focus-app/core/focus"
)

const (
	liveKeyPrefix = "focus:live:"
	channelPrefix = "focus:channel:"
)

// RedisPublisher caches live snapshots so other API instances can serve them,
// and broadcasts run activity on a per session channel.
type RedisPublisher struct {
	client *redis.Client
	ttl    time.Duration
}

var (
	_ focus.Publisher       = (*RedisPublisher)(nil)
	_ focus.SnapshotReader  = (*RedisPublisher)(nil)
	_ focus.EventSubscriber = (*RedisPublisher)(nil)
)

// NewRedisClient connects to redis and checks the connection.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func NewRedisPublisher(client *redis.Client, ttl time.Duration) *RedisPublisher {
	return &RedisPublisher{client: client, ttl: ttl}
}

func liveKey(sessionID, participantID string) string {
	return liveKeyPrefix + sessionID + ":" + participantID
}

func channel(sessionID string) string {
	return channelPrefix + sessionID
}

func (p *RedisPublisher) PublishSnapshot(ctx context.Context, snap focus.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshalling snapshot")
	}
	if err = p.client.Set(ctx, liveKey(snap.SessionID, snap.ParticipantID), data, p.ttl).Err(); err != nil {
		return errors.Wrap(err, "caching snapshot")
	}
	return p.publish(ctx, snap.SessionID, focus.LiveEvent{Type: focus.EventSnapshot, Snapshot: &snap})
}

// PublishReport drops the live snapshot of the participant and broadcasts the report.
func (p *RedisPublisher) PublishReport(ctx context.Context, rep focus.Report) error {
	if err := p.client.Del(ctx, liveKey(rep.SessionID, rep.ParticipantID)).Err(); err != nil {
		return errors.Wrap(err, "deleting snapshot")
	}
	return p.publish(ctx, rep.SessionID, focus.LiveEvent{Type: focus.EventReport, Report: &rep})
}

func (p *RedisPublisher) publish(ctx context.Context, sessionID string, evt focus.LiveEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}
	if err = p.client.Publish(ctx, channel(sessionID), data).Err(); err != nil {
		return errors.Wrap(err, "publishing event")
	}
	return nil
}

// GetSnapshot returns the cached snapshot of a participant, or focus.ErrNotRunning.
func (p *RedisPublisher) GetSnapshot(ctx context.Context, sessionID, participantID string) (focus.Snapshot, error) {
	data, err := p.client.Get(ctx, liveKey(sessionID, participantID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return focus.Snapshot{}, focus.ErrNotRunning
		}
		return focus.Snapshot{}, errors.Wrap(err, "reading snapshot")
	}

	var snap focus.Snapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		return focus.Snapshot{}, errors.Wrap(err, "unmarshalling snapshot")
	}
	return snap, nil
}

// Subscribe streams the events of a session until ctx is done.
func (p *RedisPublisher) Subscribe(ctx context.Context, sessionID string) (<-chan focus.LiveEvent, error) {
	pubsub := p.client.Subscribe(ctx, channel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrap(err, "subscribing")
	}

	events := make(chan focus.LiveEvent)
	go func() {
		defer close(events)
		defer func() { _ = pubsub.Close() }()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt focus.LiveEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case events <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}
