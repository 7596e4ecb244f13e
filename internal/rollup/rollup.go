package rollup

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"uniattend/internal/queue"
)

// Counts are the markings seen for one course on one day.
type Counts struct {
	CourseID string `json:"course_id"`
	Date     string `json:"date"`
	Present  int64  `json:"present"`
	Absent   int64  `json:"absent"`
}

// Store accumulates counts per course and day.
type Store interface {
	Add(ctx context.Context, ev queue.Marked) error
	Get(ctx context.Context, courseID, date string) (Counts, error)
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.Mutex
	counts map[string]Counts
}

func NewMemory() *Memory {
	return &Memory{counts: map[string]Counts{}}
}

func (m *Memory) Add(_ context.Context, ev queue.Marked) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := ev.CourseID + "|" + ev.Date
	c := m.counts[k]
	c.CourseID, c.Date = ev.CourseID, ev.Date
	if ev.Present {
		c.Present++
	} else {
		c.Absent++
	}
	m.counts[k] = c
	return nil
}

func (m *Memory) Get(_ context.Context, courseID, date string) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counts[courseID+"|"+date]
	if !ok {
		return Counts{CourseID: courseID, Date: date}, nil
	}
	return c, nil
}

// DefaultTTL is how long Redis keeps a day's counts.
const DefaultTTL = 30 * 24 * time.Hour

// Redis keeps counts in a hash per course and day.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis stores counts under uniattend:rollup:<course>:<date>, expiring after ttl (0 keeps them).
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func rollupKey(courseID, date string) string {
	return "uniattend:rollup:" + courseID + ":" + date
}

func (r *Redis) Add(ctx context.Context, ev queue.Marked) error {
	field := "absent"
	if ev.Present {
		field = "present"
	}
	key := rollupKey(ev.CourseID, ev.Date)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Get(ctx context.Context, courseID, date string) (Counts, error) {
	vals, err := r.client.HGetAll(ctx, rollupKey(courseID, date)).Result()
	if err != nil {
		return Counts{}, err
	}
	c := Counts{CourseID: courseID, Date: date}
	if c.Present, err = parseCount(vals["present"]); err != nil {
		return Counts{}, err
	}
	if c.Absent, err = parseCount(vals["absent"]); err != nil {
		return Counts{}, err
	}
	return c, nil
}

func parseCount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad rollup count %q: %w", s, err)
	}
	return n, nil
}

// Consumer folds attendance events into a Store.
type Consumer struct {
	Store Store
	Log   *zap.Logger
}

// Run drains msgs until the channel closes or ctx is done. Other message types are ignored.
func (c Consumer) Run(ctx context.Context, msgs <-chan queue.Message) error {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if msg.Type != queue.TypeAttendanceMarked {
				continue
			}
			var ev queue.Marked
			if err := msg.Decode(&ev); err != nil {
				log.Warn("undecodable attendance event", zap.Error(err))
				continue
			}
			if err := c.Store.Add(ctx, ev); err != nil {
				log.Error("rollup update failed", zap.String("record", ev.RecordID), zap.Error(err))
				continue
			}
			log.Debug("rollup updated", zap.String("course", ev.CourseID), zap.String("date", ev.Date), zap.Bool("present", ev.Present))
		}
	}
}
