package detector

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/classifier"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
	"github.com/redis/go-redis/v9"
)

const seenAttacksKey = "ddos:attacks:seen"

// AttackDetector reports attack log entries it has not seen before.
// Seen ids are kept locally and, when Redis is available, in a Redis set
// so a restart does not announce old attacks again.
type AttackDetector struct {
	events chan<- models.Event
	redis  *redis.Client
	ctx    context.Context
	ttl    time.Duration

	// Local cache (attack id -> first seen)
	seen sync.Map

	mu     sync.Mutex
	primed bool
}

// NewAttackDetector creates a new attack detector. redisClient may be nil.
func NewAttackDetector(events chan<- models.Event, redisClient *redis.Client) *AttackDetector {
	return &AttackDetector{
		events: events,
		redis:  redisClient,
		ctx:    context.Background(),
		ttl:    48 * time.Hour,
	}
}

// Process checks an attack log snapshot for new entries.
func (d *AttackDetector) Process(entries []models.AttackLogEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Without history the first snapshot is the baseline.
	silent := !d.primed && !d.hasHistory()
	d.primed = true

	for _, entry := range entries {
		if d.isKnown(entry.ID) {
			continue
		}
		d.markKnown(entry.ID)
		if silent {
			continue
		}

		attack := classifier.CanonicalizeAttackType(entry.Details.Type)
		event := models.Event{
			EventType:  models.EventTypeNewAttack,
			Severity:   SeverityFor(entry.Details.Type),
			SourceIP:   entry.SourceIP,
			DetectedAt: time.Now(),
			Details: map[string]interface{}{
				"attack_id":    entry.ID,
				"attack_key":   attack.Key,
				"attack_title": attack.Title,
				"raw_type":     entry.Details.Type,
				"reported_at":  string(entry.Timestamp),
				"email_status": entry.EmailStatus,
				"call_status":  entry.CallStatus,
			},
		}

		// Non-blocking send
		select {
		case d.events <- event:
		default:
		}
	}
}

func (d *AttackDetector) hasHistory() bool {
	if d.redis == nil {
		return false
	}
	n, err := d.redis.Exists(d.ctx, seenAttacksKey).Result()
	return err == nil && n > 0
}

func (d *AttackDetector) isKnown(id int64) bool {
	// Check local cache first
	if _, ok := d.seen.Load(id); ok {
		return true
	}

	// Check Redis
	if d.redis != nil {
		if d.redis.SIsMember(d.ctx, seenAttacksKey, strconv.FormatInt(id, 10)).Val() {
			d.seen.Store(id, time.Now())
			return true
		}
	}
	return false
}

func (d *AttackDetector) markKnown(id int64) {
	// Update local cache
	d.seen.Store(id, time.Now())

	// Update Redis
	if d.redis != nil {
		if err := d.redis.SAdd(d.ctx, seenAttacksKey, strconv.FormatInt(id, 10)).Err(); err != nil {
			log.Printf("Redis sadd error: %v", err)
			return
		}
		d.redis.Expire(d.ctx, seenAttacksKey, d.ttl)
	}
}
