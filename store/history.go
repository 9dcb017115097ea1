// Package store keeps a journal of everything the committee and the oracle
// announced. The journal is append-only and lives in a single bolt file.
package store

import (
	"bytes"
	"reflect"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/boltdb/bolt"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/frame"
	"github.com/rony4d/go-accounting-oracle/rules"
)

var (
	ErrRulesMismatch = errors.New("history was written for other rules")
	ErrUnknownEvent  = errors.New("unknown event")
	ErrClosed        = errors.New("history is closed")
)

var (
	eventsBucket = []byte("events")
	metaBucket   = []byte("meta")
	rulesKey     = []byte("rules")
)

// Record is one journaled notification.
type Record struct {
	Seq  uint64
	Time uint64
	Name string
	// Data is the RLP encoding of the event.
	Data []byte
}

type recordRLP struct {
	Time uint64
	Name string
	Data []byte
}

// Event decodes the journaled notification.
func (r Record) Event() (events.Event, error) {
	newEvent, ok := eventTypes[r.Name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEvent, "record %d: %q", r.Seq, r.Name)
	}
	ptr := newEvent()
	if err := rlp.DecodeBytes(r.Data, ptr); err != nil {
		return nil, errors.Wrapf(err, "record %d: decode %s", r.Seq, r.Name)
	}
	return reflect.ValueOf(ptr).Elem().Interface().(events.Event), nil
}

// History is a journal of notifications. It implements events.Sink, so it can
// be attached to the committee and the oracle directly.
type History struct {
	mu   sync.Mutex
	db   *bolt.DB
	time frame.TimeSource
	log  log.Logger
}

var _ events.Sink = (*History)(nil)

// Open opens or creates the journal at path. A new journal remembers r; an
// existing one must have been created for the same rules.
func Open(path string, r rules.Rules, clock frame.TimeSource) (*History, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open history %s", path)
	}
	if clock == nil {
		clock = frame.SystemTime{}
	}
	h := &History{
		db:   db,
		time: clock,
		log:  log.New("module", "store"),
	}
	if err := h.init(r); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

func (h *History) init(r rules.Rules) error {
	want, err := rlp.EncodeToBytes(&r)
	if err != nil {
		return errors.Wrap(err, "encode rules")
	}
	return h.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(eventsBucket); err != nil {
			return errors.Wrap(err, "create events bucket")
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return errors.Wrap(err, "create meta bucket")
		}
		got := meta.Get(rulesKey)
		if got == nil {
			return meta.Put(rulesKey, want)
		}
		if !bytes.Equal(got, want) {
			var stored rules.Rules
			if err := rlp.DecodeBytes(got, &stored); err != nil {
				return errors.Wrap(err, "decode stored rules")
			}
			return errors.Wrapf(ErrRulesMismatch, "stored %s, given %s", stored.Name, r.Name)
		}
		return nil
	})
}

// Rules returns the rules the journal was created for.
func (h *History) Rules() (rules.Rules, error) {
	var r rules.Rules
	err := h.view(func(tx *bolt.Tx) error {
		return rlp.DecodeBytes(tx.Bucket(metaBucket).Get(rulesKey), &r)
	})
	return r, errors.Wrap(err, "read rules")
}

// Append journals ev and returns its sequence number, counted from 1.
func (h *History) Append(ev events.Event) (uint64, error) {
	data, err := rlp.EncodeToBytes(ev)
	if err != nil {
		return 0, errors.Wrapf(err, "encode %s", ev.Name())
	}
	rec, err := rlp.EncodeToBytes(&recordRLP{Time: h.time.Now(), Name: ev.Name(), Data: data})
	if err != nil {
		return 0, errors.Wrap(err, "encode record")
	}
	var seq uint64
	err = h.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		seq = next
		return b.Put(bigendian.Uint64ToBytes(seq), rec)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "append %s", ev.Name())
	}
	return seq, nil
}

// Emit journals ev. Failures are only logged.
func (h *History) Emit(ev events.Event) {
	if _, err := h.Append(ev); err != nil {
		h.log.Error("Failed to journal event", "event", ev.Name(), "err", err)
	}
}

// Records returns up to limit records starting at sequence number from.
// limit <= 0 means all of them.
func (h *History) Records(from uint64, limit int) ([]Record, error) {
	var res []Record
	err := h.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		for k, v := c.Seek(bigendian.Uint64ToBytes(from)); k != nil; k, v = c.Next() {
			if limit > 0 && len(res) >= limit {
				break
			}
			var r recordRLP
			if err := rlp.DecodeBytes(v, &r); err != nil {
				return errors.Wrapf(err, "decode record %x", k)
			}
			res = append(res, Record{Seq: bigendian.BytesToUint64(k), Time: r.Time, Name: r.Name, Data: r.Data})
		}
		return nil
	})
	return res, err
}

// Len is the number of journaled records.
func (h *History) Len() (int, error) {
	var n int
	err := h.view(func(tx *bolt.Tx) error {
		n = tx.Bucket(eventsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return errors.Wrap(err, "close history")
}

func (h *History) handle() (*bolt.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil, ErrClosed
	}
	return h.db, nil
}

func (h *History) view(fn func(tx *bolt.Tx) error) error {
	db, err := h.handle()
	if err != nil {
		return err
	}
	return db.View(fn)
}

func (h *History) update(fn func(tx *bolt.Tx) error) error {
	db, err := h.handle()
	if err != nil {
		return err
	}
	return db.Update(fn)
}

// eventTypes returns, per event name, a pointer to a zero event to decode
// into.
var eventTypes = map[string]func() interface{}{
	events.MemberAdded{}.Name():                       func() interface{} { return new(events.MemberAdded) },
	events.MemberRemoved{}.Name():                     func() interface{} { return new(events.MemberRemoved) },
	events.QuorumSet{}.Name():                         func() interface{} { return new(events.QuorumSet) },
	events.FrameConfigSet{}.Name():                    func() interface{} { return new(events.FrameConfigSet) },
	events.FastLaneConfigSet{}.Name():                 func() interface{} { return new(events.FastLaneConfigSet) },
	events.ReportProcessorSet{}.Name():                func() interface{} { return new(events.ReportProcessorSet) },
	events.ReportReceived{}.Name():                    func() interface{} { return new(events.ReportReceived) },
	events.ConsensusReached{}.Name():                  func() interface{} { return new(events.ConsensusReached) },
	events.ConsensusHashContractSet{}.Name():          func() interface{} { return new(events.ConsensusHashContractSet) },
	events.ConsensusVersionSet{}.Name():               func() interface{} { return new(events.ConsensusVersionSet) },
	events.ReportSubmitted{}.Name():                   func() interface{} { return new(events.ReportSubmitted) },
	events.ReportDiscarded{}.Name():                   func() interface{} { return new(events.ReportDiscarded) },
	events.ProcessingStarted{}.Name():                 func() interface{} { return new(events.ProcessingStarted) },
	events.ExtraDataSubmitted{}.Name():                func() interface{} { return new(events.ExtraDataSubmitted) },
	events.WarnProcessingMissed{}.Name():              func() interface{} { return new(events.WarnProcessingMissed) },
	events.WarnExtraDataIncompleteProcessing{}.Name(): func() interface{} { return new(events.WarnExtraDataIncompleteProcessing) },
	events.MainDataApplied{}.Name():                   func() interface{} { return new(events.MainDataApplied) },
}
