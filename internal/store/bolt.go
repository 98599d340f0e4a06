package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const maxLogEvents = 500

var (
	bucketLogEvents      = []byte("log_events")
	bucketPartitionState = []byte("partition_states")
	bucketZoneState      = []byte("zone_states")
)

// BoltStore implements Store using an embedded BoltDB file, one bucket per
// entity type.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketLogEvents, bucketPartitionState, bucketZoneState} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// AppendLogEvent stores e under a monotonically increasing sequence key so
// ForEach naturally yields insertion order, then evicts the oldest entries
// until at most maxLogEvents remain.
func (s *BoltStore) AppendLogEvent(e *LogEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogEvents)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLogEvents)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		e.Seq = seq
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}
		return evictOldest(b, maxLogEvents)
	})
}

func evictOldest(b *bolt.Bucket, keep int) error {
	// Count with a cursor: Bucket.Stats only sees committed pages, so it
	// would miss the key this same transaction just put.
	c := b.Cursor()
	n := 0
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	for ; n > keep; n-- {
		if k, _ := c.First(); k == nil {
			break
		}
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// RecentLogEvents returns up to limit of the most recently appended events,
// newest first.
func (s *BoltStore) RecentLogEvents(limit int) ([]*LogEvent, error) {
	var events []*LogEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogEvents)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(events) < limit; k, v = c.Prev() {
			var e LogEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			events = append(events, &e)
		}
		return nil
	})
	return events, err
}

func (s *BoltStore) SavePartitionState(st *PartitionState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPartitionState)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketPartitionState)
		}
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return b.Put([]byte(st.UniqueID), data)
	})
}

func (s *BoltStore) SaveZoneState(st *ZoneState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketZoneState)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketZoneState)
		}
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return b.Put([]byte(st.UniqueID), data)
	})
}

func (s *BoltStore) PartitionStates() ([]*PartitionState, error) {
	var states []*PartitionState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPartitionState)
		if b == nil {
			return nil
		}
		states = make([]*PartitionState, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var st PartitionState
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			states = append(states, &st)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortStatesByIndex(states)
	return states, nil
}

func (s *BoltStore) ZoneStates() ([]*ZoneState, error) {
	var states []*ZoneState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketZoneState)
		if b == nil {
			return nil
		}
		states = make([]*ZoneState, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var st ZoneState
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			states = append(states, &st)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(states); i++ {
		for j := i; j > 0 && states[j-1].Index > states[j].Index; j-- {
			states[j-1], states[j] = states[j], states[j-1]
		}
	}
	return states, nil
}

func sortStatesByIndex(states []*PartitionState) {
	for i := 1; i < len(states); i++ {
		for j := i; j > 0 && states[j-1].Index > states[j].Index; j-- {
			states[j-1], states[j] = states[j], states[j-1]
		}
	}
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
