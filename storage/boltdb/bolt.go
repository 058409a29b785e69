package boltdb

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/storage/common"
	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

var (
	ErrBucketsNotExists = fmt.Errorf("storage bucket doesn't exist")

	metaBucket = []byte("_meta")
	usedKey    = []byte("used")
)

type Options func(*Bolt)

func WithBucket(name string) Options {
	return func(b *Bolt) {
		if name != "" {
			b.bucket = []byte(name)
		}
	}
}

// WithQuota limits the total size of keys and values in bytes.
func WithQuota(bytes int64) Options {
	return func(b *Bolt) {
		b.quota = bytes
	}
}

func WithLogger(log *zap.Logger) Options {
	return func(b *Bolt) {
		if log != nil {
			b.log = log
		}
	}
}

func WithTimeout(d time.Duration) Options {
	return func(b *Bolt) {
		b.timeout = d
	}
}

// Bolt keeps every item in one bucket. Keys are enumerated in bolt's
// byte-sorted order.
type Bolt struct {
	db      *bolt.DB
	bucket  []byte
	quota   int64
	timeout time.Duration
	closed  atomic.Bool
	log     *zap.Logger
}

func NewBoltDB(saveTo string, opts ...Options) (*Bolt, error) {
	fileName := "storage.db"
	if saveTo != "" {
		fileName = saveTo
	}
	b := &Bolt{
		bucket:  []byte("storage"),
		timeout: 5 * time.Second,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	db, err := bolt.Open(fileName, 0600, &bolt.Options{Timeout: b.timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %q: %w", fileName, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(b.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %q: %w", b.bucket, err)
	}
	b.db = db
	return b, nil
}

var _ adapter.Store = (*Bolt)(nil)

func used(meta *bolt.Bucket) int64 {
	v := meta.Get(usedKey)
	if len(v) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}

func setUsed(meta *bolt.Bucket, n int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	return meta.Put(usedKey, buf[:])
}

func (b *Bolt) SetItem(key, value string) error {
	if key == "" {
		return common.ErrEmptyKey
	}
	if b.closed.Load() {
		return common.ErrClosed
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bs := tx.Bucket(b.bucket)
		meta := tx.Bucket(metaBucket)
		if bs == nil || meta == nil {
			return ErrBucketsNotExists
		}
		n := used(meta) + common.Size(key, value)
		if old := bs.Get([]byte(key)); old != nil {
			n -= int64(len(key) + len(old))
		}
		if b.quota > 0 && n > b.quota {
			return common.ErrQuotaExceeded
		}
		if err := bs.Put([]byte(key), []byte(value)); err != nil {
			return err
		}
		return setUsed(meta, n)
	})
}

func (b *Bolt) GetItem(key string) (value string, ok bool) {
	if key == "" || b.closed.Load() {
		return "", false
	}
	err := b.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(b.bucket)
		if bs == nil {
			return ErrBucketsNotExists
		}
		// bytes are only valid inside the transaction
		if c := bs.Get([]byte(key)); c != nil {
			value, ok = string(c), true
		}
		return nil
	})
	if err != nil {
		b.log.Error("bolt get", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return
}

func (b *Bolt) RemoveItem(key string) {
	if key == "" || b.closed.Load() {
		return
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bs := tx.Bucket(b.bucket)
		meta := tx.Bucket(metaBucket)
		if bs == nil || meta == nil {
			return ErrBucketsNotExists
		}
		old := bs.Get([]byte(key))
		if old == nil {
			return nil
		}
		n := used(meta) - int64(len(key)+len(old))
		if err := bs.Delete([]byte(key)); err != nil {
			return err
		}
		return setUsed(meta, n)
	})
	if err != nil {
		b.log.Error("bolt delete", zap.String("key", key), zap.Error(err))
	}
}

func (b *Bolt) Length() (n int) {
	if b.closed.Load() {
		return 0
	}
	b.db.View(func(tx *bolt.Tx) error {
		if bs := tx.Bucket(b.bucket); bs != nil {
			n = bs.Stats().KeyN
		}
		return nil
	})
	return
}

func (b *Bolt) Key(index int) (key string, ok bool) {
	if index < 0 || b.closed.Load() {
		return "", false
	}
	b.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(b.bucket)
		if bs == nil {
			return ErrBucketsNotExists
		}
		c := bs.Cursor()
		i := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if i == index {
				key, ok = string(k), true
				return nil
			}
			i++
		}
		return nil
	})
	return
}

func (b *Bolt) Keys() []string {
	keys := []string{}
	if b.closed.Load() {
		return keys
	}
	b.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(b.bucket)
		if bs == nil {
			return ErrBucketsNotExists
		}
		return bs.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys
}

// Used reports how many bytes count against the quota.
func (b *Bolt) Used() (n int64) {
	b.db.View(func(tx *bolt.Tx) error {
		if meta := tx.Bucket(metaBucket); meta != nil {
			n = used(meta)
		}
		return nil
	})
	return
}

func (b *Bolt) Available() bool {
	return !b.closed.Load()
}

func (b *Bolt) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}
