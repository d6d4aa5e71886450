package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cogent-run/cogent/pkg/models"
)

// fileRecord is the on-disk shape of one session file: the session header
// plus its full message log, so a session can be loaded or rewritten in a
// single read/write.
type fileRecord struct {
	Session  *models.Session   `json:"session"`
	Messages []*models.Message `json:"messages"`
}

// FileStore is a Store backed by one JSON file per session under dir,
// written atomically (temp file + rename) so a crash mid-write never
// corrupts an existing session. It keeps an in-memory index for lookups
// and enforces maxSessions retention by deleting the oldest session file
// (by UpdatedAt) once the cap is exceeded.
//
// Grounded on the flat-file session manager pattern: marshal the whole
// record, write to a temp file in the same directory, fsync, then rename
// over the target path.
type FileStore struct {
	mu          sync.RWMutex
	dir         string
	maxSessions int

	sessions map[string]*models.Session // id -> session (in-memory cache)
	byKey    map[string]string          // key -> id
}

// NewFileStore creates a FileStore rooted at dir, loading any existing
// session files into its in-memory index. maxSessions <= 0 means unlimited.
func NewFileStore(dir string, maxSessions int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	fs := &FileStore{
		dir:         dir,
		maxSessions: maxSessions,
		sessions:    map[string]*models.Session{},
		byKey:       map[string]string{},
	}
	if err := fs.loadIndex(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) loadIndex() error {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return fmt.Errorf("read session dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := fs.readFile(entry.Name())
		if err != nil || rec.Session == nil {
			continue
		}
		fs.sessions[rec.Session.ID] = rec.Session
		if rec.Session.Key != "" {
			fs.byKey[rec.Session.Key] = rec.Session.ID
		}
	}
	return nil
}

func (fs *FileStore) pathFor(id string) (string, error) {
	name := sanitizeFilename(id)
	if name == "." || name == "" || !filepath.IsLocal(name) || strings.ContainsAny(name, `/\`) {
		return "", os.ErrInvalid
	}
	return filepath.Join(fs.dir, name+".json"), nil
}

func sanitizeFilename(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (fs *FileStore) readFile(name string) (*fileRecord, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir, name))
	if err != nil {
		return nil, err
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session file %s: %w", name, err)
	}
	return &rec, nil
}

func (fs *FileStore) writeRecord(rec *fileRecord) error {
	path, err := fs.pathFor(rec.Session.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(fs.dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	cleanup = false
	return nil
}

func (fs *FileStore) loadRecord(id string) (*fileRecord, error) {
	path, err := fs.pathFor(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("session not found")
		}
		return nil, err
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return &rec, nil
}

func (fs *FileStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt

	if err := fs.writeRecord(&fileRecord{Session: session, Messages: nil}); err != nil {
		return err
	}
	fs.sessions[session.ID] = session
	if session.Key != "" {
		fs.byKey[session.Key] = session.ID
	}
	return fs.enforceRetention()
}

func (fs *FileStore) Get(ctx context.Context, id string) (*models.Session, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	s, ok := fs.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	clone := *s
	return &clone, nil
}

func (fs *FileStore) Update(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec, err := fs.loadRecord(session.ID)
	if err != nil {
		return err
	}
	session.UpdatedAt = time.Now()
	rec.Session = session
	if err := fs.writeRecord(rec); err != nil {
		return err
	}
	fs.sessions[session.ID] = session
	if session.Key != "" {
		fs.byKey[session.Key] = session.ID
	}
	return nil
}

func (fs *FileStore) Delete(ctx context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	path, err := fs.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if s, ok := fs.sessions[id]; ok && s.Key != "" {
		delete(fs.byKey, s.Key)
	}
	delete(fs.sessions, id)
	return nil
}

func (fs *FileStore) GetByKey(ctx context.Context, key string) (*models.Session, error) {
	fs.mu.RLock()
	id, ok := fs.byKey[key]
	fs.mu.RUnlock()
	if !ok {
		return nil, errors.New("session not found")
	}
	return fs.Get(ctx, id)
}

func (fs *FileStore) GetOrCreate(ctx context.Context, key string, agentID string, channel models.ChannelType, channelID string) (*models.Session, error) {
	if s, err := fs.GetByKey(ctx, key); err == nil {
		return s, nil
	}
	session := &models.Session{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Channel:   channel,
		ChannelID: channelID,
		Key:       key,
	}
	if err := fs.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (fs *FileStore) List(ctx context.Context, agentID string, opts ListOptions) ([]*models.Session, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var out []*models.Session
	for _, s := range fs.sessions {
		if agentID != "" && s.AgentID != agentID {
			continue
		}
		if opts.Channel != "" && s.Channel != opts.Channel {
			continue
		}
		clone := *s
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(out) {
		return []*models.Session{}, nil
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return out[start:end], nil
}

func (fs *FileStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec, err := fs.loadRecord(sessionID)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	rec.Messages = append(rec.Messages, msg)
	if len(rec.Messages) > maxMessagesPerSession {
		rec.Messages = rec.Messages[len(rec.Messages)-maxMessagesPerSession:]
	}
	rec.Session.UpdatedAt = msg.CreatedAt
	if err := fs.writeRecord(rec); err != nil {
		return err
	}
	fs.sessions[sessionID] = rec.Session
	return nil
}

func (fs *FileStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	rec, err := fs.loadRecord(sessionID)
	if err != nil {
		return nil, err
	}
	messages := rec.Messages
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}
	out := make([]*models.Message, len(messages)-start)
	copy(out, messages[start:])
	return out, nil
}

// enforceRetention deletes the oldest sessions (by UpdatedAt) once the
// session count exceeds maxSessions. Must be called with fs.mu held.
func (fs *FileStore) enforceRetention() error {
	if fs.maxSessions <= 0 || len(fs.sessions) <= fs.maxSessions {
		return nil
	}
	type idAt struct {
		id string
		at time.Time
	}
	all := make([]idAt, 0, len(fs.sessions))
	for id, s := range fs.sessions {
		all = append(all, idAt{id: id, at: s.UpdatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	excess := len(fs.sessions) - fs.maxSessions
	for i := 0; i < excess; i++ {
		id := all[i].id
		path, err := fs.pathFor(id)
		if err == nil {
			os.Remove(path)
		}
		if s, ok := fs.sessions[id]; ok && s.Key != "" {
			delete(fs.byKey, s.Key)
		}
		delete(fs.sessions, id)
	}
	return nil
}
