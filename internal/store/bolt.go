package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"uniattend/internal/model"
)

var (
	usersBucket   = []byte("users")
	coursesBucket = []byte("courses")
	recordsBucket = []byte("attendance_records")
)

// Bolt persists entities as JSON documents in a bbolt file.
type Bolt struct {
	db *bbolt.DB
}

// userDoc carries the password hash, which model.User hides from JSON.
type userDoc struct {
	model.User
	PasswordHash string `json:"password_hash"`
}

type recordDoc struct {
	ID         string `json:"id"`
	CourseID   string `json:"course_id"`
	StudentID  string `json:"student_id"`
	Day        string `json:"day"`
	TimeMarked string `json:"time_marked"`
	Present    bool   `json:"present"`
}

// OpenBolt opens (or creates) a bbolt database and its buckets.
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{usersBucket, coursesBucket, recordsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

// Close closes the bolt file.
func (b *Bolt) Close() error { return b.db.Close() }

func put[T any](tx *bbolt.Tx, bucket []byte, key []byte, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put(key, data)
}

func get[T any](tx *bbolt.Tx, bucket []byte, key string) (T, bool, error) {
	var out T
	v := tx.Bucket(bucket).Get([]byte(key))
	if v == nil {
		return out, false, nil
	}
	return out, true, json.Unmarshal(v, &out)
}

func each[T any](tx *bbolt.Tx, bucket []byte, fn func(T)) error {
	return tx.Bucket(bucket).ForEach(func(_, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		fn(item)
		return nil
	})
}

func (b *Bolt) SaveUser(_ context.Context, u model.User) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, usersBucket, []byte(u.ID), userDoc{User: u, PasswordHash: u.PasswordHash})
	})
}

func (b *Bolt) UserByID(_ context.Context, id string) (model.User, error) {
	var doc userDoc
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		doc, found, err = get[userDoc](tx, usersBucket, id)
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	if !found {
		return model.User{}, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	return doc.toUser(), nil
}

func (b *Bolt) QueryUsers(_ context.Context, q UserQuery) ([]model.User, error) {
	var out []model.User
	err := b.db.View(func(tx *bbolt.Tx) error {
		return each(tx, usersBucket, func(d userDoc) {
			if u := d.toUser(); q.Match(u) {
				out = append(out, u)
			}
		})
	})
	sortUsers(out)
	return out, err
}

func (d userDoc) toUser() model.User {
	u := d.User
	u.PasswordHash = d.PasswordHash
	return u
}

func (b *Bolt) SaveCourse(_ context.Context, c model.Course) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, coursesBucket, []byte(c.ID), c)
	})
}

func (b *Bolt) CourseByID(_ context.Context, id string) (model.Course, error) {
	var c model.Course
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		c, found, err = get[model.Course](tx, coursesBucket, id)
		return err
	})
	if err != nil {
		return model.Course{}, err
	}
	if !found {
		return model.Course{}, fmt.Errorf("course %s: %w", id, model.ErrNotFound)
	}
	if c.StudentIDs == nil {
		c.StudentIDs = []string{}
	}
	return c, nil
}

func (b *Bolt) QueryCourses(_ context.Context, q CourseQuery) ([]model.Course, error) {
	var out []model.Course
	err := b.db.View(func(tx *bbolt.Tx) error {
		return each(tx, coursesBucket, func(c model.Course) {
			if q.Match(c) {
				out = append(out, c)
			}
		})
	})
	sortCourses(out)
	return out, err
}

// AppendRecord keys records by the bucket sequence, so cursor order is insertion order.
func (b *Bolt) AppendRecord(_ context.Context, r model.AttendanceRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return put(tx, recordsBucket, key, recordDoc{
			ID:         r.ID,
			CourseID:   r.CourseID,
			StudentID:  r.StudentID,
			Day:        r.Date.Format(model.DateLayout),
			TimeMarked: r.TimeMarked.Format(model.ClockLayout),
			Present:    r.Present,
		})
	})
}

func (b *Bolt) RecordByID(ctx context.Context, id string) (model.AttendanceRecord, error) {
	all, err := b.QueryRecords(ctx, RecordQuery{})
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return model.AttendanceRecord{}, fmt.Errorf("attendance record %s: %w", id, model.ErrNotFound)
}

func (b *Bolt) QueryRecords(_ context.Context, q RecordQuery) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	var convErr error
	err := b.db.View(func(tx *bbolt.Tx) error {
		return each(tx, recordsBucket, func(d recordDoc) {
			if convErr != nil {
				return
			}
			r, err := d.toRecord()
			if err != nil {
				convErr = err
				return
			}
			if q.Match(r) {
				out = append(out, r)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return out, convErr
}

func (d recordDoc) toRecord() (model.AttendanceRecord, error) {
	day, err := model.ParseDay(d.Day)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	clock, err := model.ParseClock(d.TimeMarked)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	return model.AttendanceRecord{
		ID:         d.ID,
		CourseID:   d.CourseID,
		StudentID:  d.StudentID,
		Date:       day,
		TimeMarked: clock,
		Present:    d.Present,
	}, nil
}
