// Package queue implements the durable outbound record queue. Export
// records wait here until the drain loop ships them to their partner.
package queue

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// queueDirPerm is the permission mode for the queue directory.
	queueDirPerm = fs.FileMode(0o700)

	// queueFilePerm is the permission mode for the queue database file.
	queueFilePerm = fs.FileMode(0o600)

	// queueOpenTimeout is the maximum time to wait for the bolt
	// database lock.
	queueOpenTimeout = 5 * time.Second
)

var recordsBucket = []byte("records")

// Record is one queued export: which partner it targets, the object
// key to store it under, and the payload bytes. Seq is the bbolt
// sequence number used to acknowledge it.
type Record struct {
	Seq     uint64 `json:"-"`
	Partner string `json:"partner"`
	Key     string `json:"key"`
	Payload []byte `json:"payload"`
}

// Queue is a bbolt-backed FIFO of export records. Safe for concurrent
// use; bbolt serializes writers internally.
type Queue struct {
	db *bolt.DB
}

// Open opens (or creates) the queue database at path.
func Open(path string) (*Queue, error) {
	if err := os.MkdirAll(filepath.Dir(path), queueDirPerm); err != nil {
		return nil, fmt.Errorf("creating queue directory: %w", err)
	}

	db, err := bolt.Open(path, queueFilePerm, &bolt.Options{Timeout: queueOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening queue database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)

		return err
	})
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("creating records bucket: %w", err)
	}

	return &Queue{db: db}, nil
}

// Close releases the database file.
func (q *Queue) Close() error {
	return q.db.Close()
}

// seqKey encodes a sequence number as a big-endian key so bbolt's
// byte-ordered iteration yields records oldest first.
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)

	return key
}

// Enqueue appends a record and returns its sequence number.
func (q *Queue) Enqueue(partner, key string, payload []byte) (uint64, error) {
	rec := Record{Partner: partner, Key: key, Payload: payload}

	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("marshalling record: %w", err)
	}

	var seq uint64

	err = q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)

		seq, err = b.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating sequence: %w", err)
		}

		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("enqueuing record: %w", err)
	}

	return seq, nil
}

// Pending returns up to max records, oldest first, without removing
// them. Records stay queued until Ack.
func (q *Queue) Pending(max int) ([]Record, error) {
	var records []Record

	err := q.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()

		for k, v := c.First(); k != nil && len(records) < max; k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshalling record %d: %w", binary.BigEndian.Uint64(k), err)
			}

			rec.Seq = binary.BigEndian.Uint64(k)
			records = append(records, rec)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading pending records: %w", err)
	}

	return records, nil
}

// Ack removes a delivered record. Acking an unknown sequence is a
// no-op, so a crash between upload and ack is safe (the record is
// re-uploaded, which partners must tolerate as an overwrite).
func (q *Queue) Ack(seq uint64) error {
	err := q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete(seqKey(seq))
	})
	if err != nil {
		return fmt.Errorf("acking record %d: %w", seq, err)
	}

	return nil
}

// Len returns the number of queued records.
func (q *Queue) Len() (int, error) {
	var n int

	err := q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(recordsBucket).Stats().KeyN

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}

	return n, nil
}
