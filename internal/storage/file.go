package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"resetbot/internal/reset"
	"resetbot/internal/transport"
	logx "resetbot/pkg/logx"
)

// fileStore keeps everything next to the configured path:
//   - <path>                 event lists {"daily": [...], "weekly": [...]}
//   - <prefix>.boards.json   board message references
//   - <prefix>.audit.jsonl   append-only audit log
//
// Documents are replaced with write-temp-then-rename so a crash never
// leaves a half-written file.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	eventsPath string
	boardsPath string
	auditFile  *os.File
}

type boardRecord struct {
	ChatID    string `json:"chat_id"`
	ThreadID  string `json:"thread_id,omitempty"`
	MessageID string `json:"message_id"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	prefix := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base)))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("path", path))
	return &fileStore{
		log:        log,
		eventsPath: path,
		boardsPath: prefix + ".boards.json",
		auditFile:  af,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

func (s *fileStore) Load(ctx context.Context) (reset.State, error) {
	if err := ctx.Err(); err != nil {
		return reset.State{}, unavailable("load events", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var st reset.State
	if err := readJSON(s.eventsPath, &st); err != nil {
		return reset.State{}, unavailable("load events", err)
	}
	st.Normalize()
	return st, nil
}

func (s *fileStore) Save(ctx context.Context, st reset.State) error {
	if err := ctx.Err(); err != nil {
		return unavailable("save events", err)
	}
	st = st.Clone()
	st.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSONAtomic(s.eventsPath, st); err != nil {
		return unavailable("save events", err)
	}
	return nil
}

func (s *fileStore) BoardRef(ctx context.Context, kind string) (transport.MessageRef, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	boards := map[string]boardRecord{}
	if err := readJSON(s.boardsPath, &boards); err != nil {
		return transport.MessageRef{}, false, err
	}
	r, ok := boards[kind]
	if !ok || r.MessageID == "" {
		return transport.MessageRef{}, false, nil
	}
	return transport.MessageRef{ChatID: r.ChatID, ThreadID: r.ThreadID, MessageID: r.MessageID}, true, nil
}

func (s *fileStore) SetBoardRef(ctx context.Context, kind string, ref transport.MessageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	boards := map[string]boardRecord{}
	if err := readJSON(s.boardsPath, &boards); err != nil {
		return err
	}
	boards[kind] = boardRecord{ChatID: ref.ChatID, ThreadID: ref.ThreadID, MessageID: ref.MessageID}
	return writeJSONAtomic(s.boardsPath, boards)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

// readJSON decodes path into v; a missing file leaves v untouched.
func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
