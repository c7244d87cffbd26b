package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
)

// ErrNoMessage is returned when no message is visible
var ErrNoMessage = models.ErrNoMessage

// envelope is the structure stored in Badger
type envelope struct {
	Body         models.QueueMessage `json:"body"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// BadgerManager implements a persistent queue using BadgerDB.
// Message data lives at queue:{name}:msg:{id}; a visibility index at
// queue:{name}:index:{visibleAt}:{id} keeps ready messages in key order.
type BadgerManager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

var _ interfaces.QueueManager = (*BadgerManager)(nil)

// NewBadgerManager creates a new Badger-backed queue manager
func NewBadgerManager(db *badger.DB, config Config, logger arbor.ILogger) (*BadgerManager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if config.QueueName == "" {
		return nil, errors.New("queue name is required")
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 20 * time.Minute
	}
	if config.MaxReceive <= 0 {
		config.MaxReceive = 1
	}

	return &BadgerManager{
		db:                db,
		queueName:         config.QueueName,
		visibilityTimeout: config.VisibilityTimeout,
		maxReceive:        config.MaxReceive,
		logger:            logger,
	}, nil
}

// Enqueue adds a message that is visible immediately
func (m *BadgerManager) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	return m.EnqueueWithDelay(ctx, msg, 0)
}

// EnqueueWithDelay adds a message that becomes visible after delay
func (m *BadgerManager) EnqueueWithDelay(ctx context.Context, msg models.QueueMessage, delay time.Duration) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now()
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = now
	}
	if delay < 0 {
		delay = 0
	}

	env := envelope{Body: msg, VisibleAt: now.Add(delay)}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	if err := m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(msg.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, msg.ID), []byte{})
	}); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	m.logger.Debug().
		Str("message_id", msg.ID).
		Str("type", string(msg.Type)).
		Str("post_id", msg.PostID).
		Int("attempt", msg.Attempt).
		Dur("delay", delay).
		Msg("Message enqueued")
	return nil
}

// Receive claims the next visible message. The returned function deletes it once handled.
func (m *BadgerManager) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var env envelope
	var dropped []string
	claimed := false

	err := m.db.Update(func(txn *badger.Txn) error {
		// Retried transactions start over
		dropped = dropped[:0]

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := m.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		var claimedKey []byte

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}
			// Keys sort by visibility time, nothing after this one is ready
			if ts.After(now) {
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}
			var candidate envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &candidate)
			}); err != nil {
				return err
			}

			// Delivered often enough already; a crashed worker left it behind
			if candidate.ReceiveCount >= m.maxReceive {
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				dropped = append(dropped, id)
				continue
			}

			env = candidate
			claimedKey = key
			break
		}

		// Returning nil commits the drops above even when nothing is claimed
		if claimedKey == nil {
			return nil
		}
		claimed = true

		env.ReceiveCount++
		env.VisibleAt = now.Add(m.visibilityTimeout)
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(env.Body.ID), data); err != nil {
			return err
		}
		if err := txn.Delete(claimedKey); err != nil {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, env.Body.ID), []byte{})
	})

	if err != nil {
		return nil, nil, err
	}

	for _, id := range dropped {
		m.logger.Warn().
			Str("message_id", id).
			Int("max_receive", m.maxReceive).
			Msg("Dropped message that exceeded max receive count")
	}

	if !claimed {
		return nil, nil, ErrNoMessage
	}

	msgID := env.Body.ID
	deleteFn := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			current, err := m.load(txn, msgID)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return nil
				}
				return err
			}
			if err := txn.Delete(m.indexKey(current.VisibleAt, msgID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return txn.Delete(m.msgKey(msgID))
		})
	}

	body := env.Body
	return &body, deleteFn, nil
}

// Extend hides a received message for another duration from now
func (m *BadgerManager) Extend(ctx context.Context, messageID string, duration time.Duration) error {
	return m.db.Update(func(txn *badger.Txn) error {
		env, err := m.load(txn, messageID)
		if err != nil {
			return err
		}

		oldVisibleAt := env.VisibleAt
		env.VisibleAt = time.Now().Add(duration)

		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(messageID), data); err != nil {
			return err
		}
		if err := txn.Delete(m.indexKey(oldVisibleAt, messageID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, messageID), []byte{})
	})
}

// Len returns the number of stored messages, visible or not
func (m *BadgerManager) Len(ctx context.Context) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close is a no-op; the DB is managed by the storage layer
func (m *BadgerManager) Close() error {
	return nil
}

func (m *BadgerManager) load(txn *badger.Txn, id string) (envelope, error) {
	var env envelope
	item, err := txn.Get(m.msgKey(id))
	if err != nil {
		return env, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	})
	return env, err
}

func (m *BadgerManager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *BadgerManager) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
}

func (m *BadgerManager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so byte order matches time order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *BadgerManager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := m.indexPrefix()
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	// Suffix is "{20-digit-ts}:{id}"
	suffix := string(key[len(prefix):])
	if len(suffix) < 22 || suffix[20] != ':' {
		return time.Time{}, "", fmt.Errorf("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}
