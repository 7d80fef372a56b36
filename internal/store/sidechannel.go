package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
)

// sideChannel is the scalar time-series mirror for one run: an opaque sink
// that visualization tooling reads, separate from the row-oriented tables.
// Values are keyed by tag and a per-tag monotonically increasing step.
type sideChannel struct {
	db    *badger.DB
	steps map[string]uint64 // next step per tag
}

// openSideChannel opens (or creates) the sink directory.
func openSideChannel(dir string) (*sideChannel, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &sideChannel{db: db, steps: make(map[string]uint64)}, nil
}

// append records value at the tag's next step. On the first append for a
// tag after reopening a run, the counter resumes after the last persisted
// step rather than restarting at zero.
func (sc *sideChannel) append(tag string, value float64) error {
	step, ok := sc.steps[tag]
	if !ok {
		last, found, err := sc.lastStep(tag)
		if err != nil {
			return err
		}
		if found {
			step = last + 1
		}
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(value))
	err := sc.db.Update(func(txn *badger.Txn) error {
		return txn.Set(scalarKey(tag, step), buf)
	})
	if err != nil {
		return fmt.Errorf("append %s step %d: %w", tag, step, err)
	}
	sc.steps[tag] = step + 1
	return nil
}

// series returns every recorded value for a tag in step order.
func (sc *sideChannel) series(tag string) ([]float64, error) {
	var values []float64
	err := sc.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = tagPrefix(tag)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				if len(val) == 8 {
					values = append(values, math.Float64frombits(binary.BigEndian.Uint64(val)))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read series %s: %w", tag, err)
	}
	return values, nil
}

// lastStep scans for the highest persisted step of a tag.
func (sc *sideChannel) lastStep(tag string) (step uint64, found bool, err error) {
	err = sc.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = tagPrefix(tag)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) >= 8 {
				step = binary.BigEndian.Uint64(key[len(key)-8:])
				found = true
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("scan last step for %s: %w", tag, err)
	}
	return step, found, nil
}

func (sc *sideChannel) close() error {
	return sc.db.Close()
}

// tagPrefix separates the tag from the step with a NUL so one tag's keys
// can never prefix-collide with another's.
func tagPrefix(tag string) []byte {
	return append([]byte(tag), 0)
}

// scalarKey is tagPrefix plus the big-endian step, so iteration order is
// step order.
func scalarKey(tag string, step uint64) []byte {
	key := make([]byte, 0, len(tag)+9)
	key = append(key, tagPrefix(tag)...)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, step)
	return append(key, buf...)
}
