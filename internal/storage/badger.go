package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"

	"resetbot/internal/reset"
	"resetbot/internal/transport"
	logx "resetbot/pkg/logx"
)

const (
	badgerStateKey   = "state"
	badgerBoardPfx   = "board:"
	badgerAuditPfx   = "audit:"
	badgerGCInterval = 10 * time.Minute
)

// badgerStore keeps the event lists as one JSON document so a save is a
// single atomic Set.
type badgerStore struct {
	db  *badger.DB
	log logx.Logger

	auditSeq atomic.Uint64
	stopGC   chan struct{}
}

func openBadger(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	// A file-looking path ("./data/resets.json") becomes a sibling directory.
	if ext := filepath.Ext(dir); ext != "" {
		dir = strings.TrimSuffix(dir, ext) + ".badger"
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	opts := badger.DefaultOptions(absPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	log.Debug("badger store opened", logx.String("path", absPath))

	s := &badgerStore{db: db, log: log, stopGC: make(chan struct{})}
	go s.gcLoop()
	return s, nil
}

func (s *badgerStore) gcLoop() {
	t := time.NewTicker(badgerGCInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-t.C:
			for s.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

func (s *badgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	close(s.stopGC)
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *badgerStore) get(key string, v any) (bool, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

func (s *badgerStore) set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *badgerStore) Load(ctx context.Context) (reset.State, error) {
	if err := ctx.Err(); err != nil {
		return reset.State{}, unavailable("load events", err)
	}
	var st reset.State
	if _, err := s.get(badgerStateKey, &st); err != nil {
		return reset.State{}, unavailable("load events", err)
	}
	st.Normalize()
	return st, nil
}

func (s *badgerStore) Save(ctx context.Context, st reset.State) error {
	if err := ctx.Err(); err != nil {
		return unavailable("save events", err)
	}
	st = st.Clone()
	st.Normalize()
	if err := s.set(badgerStateKey, st); err != nil {
		return unavailable("save events", err)
	}
	return nil
}

func (s *badgerStore) BoardRef(ctx context.Context, kind string) (transport.MessageRef, bool, error) {
	var r boardRecord
	ok, err := s.get(badgerBoardPfx+kind, &r)
	if err != nil || !ok || r.MessageID == "" {
		return transport.MessageRef{}, false, err
	}
	return transport.MessageRef{ChatID: r.ChatID, ThreadID: r.ThreadID, MessageID: r.MessageID}, true, nil
}

func (s *badgerStore) SetBoardRef(ctx context.Context, kind string, ref transport.MessageRef) error {
	return s.set(badgerBoardPfx+kind, boardRecord{ChatID: ref.ChatID, ThreadID: ref.ThreadID, MessageID: ref.MessageID})
}

// AppendAudit stores entries under time-ordered keys so a prefix scan
// returns them chronologically.
func (s *badgerStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	key := fmt.Sprintf("%s%020d:%06d", badgerAuditPfx, e.At.UnixNano(), s.auditSeq.Add(1)%1_000_000)
	return s.set(key, e)
}

// auditEntries lists stored audit entries in order.
func (s *badgerStore) auditEntries() ([]AuditEntry, error) {
	var out []AuditEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerAuditPfx)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e AuditEntry
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}
