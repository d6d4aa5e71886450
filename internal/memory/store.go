// Package memory implements the durable, key-less fact store (Memory Store,
// C4): a flat set of user facts with dedup, weighted relevance ranking for
// prompt assembly, and confidence decay.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cogent-run/cogent/pkg/models"
)

// DecayFactors maps a memory category to the confidence multiplier applied
// on each getForPrompt call to memories that were not selected.
type DecayFactors map[string]float64

// DefaultDecayFactors returns conservative per-category decay: facts and
// preferences persist longest, one-off routines fade fastest.
func DefaultDecayFactors() DecayFactors {
	return DecayFactors{
		string(models.MemoryCategoryFact):         0.995,
		string(models.MemoryCategoryPreference):   0.99,
		string(models.MemoryCategoryRoutine):      0.97,
		string(models.MemoryCategoryRelationship): 0.995,
	}
}

// Options configures the weighting and housekeeping behavior of Store.
type Options struct {
	// DecayFactor is the per-category confidence multiplier applied to
	// memories not returned by the current getForPrompt call.
	DecayFactor DecayFactors

	// PruneBelow removes memories whose confidence falls below this
	// threshold after decay.
	PruneBelow float64

	// AccessBoost is the fixed confidence delta applied by Access, capped
	// at 1.0.
	AccessBoost float64

	// PromptTokenCap bounds how many (approximate) tokens GetForPrompt may
	// return across the memories it selects.
	PromptTokenCap int

	// ConflictWindow is how close two modifiedAt timestamps for the same id
	// must be to be logged as a simultaneous-edit conflict during Merge.
	ConflictWindow time.Duration

	// DeviceID identifies the device new memories are attributed to.
	DeviceID string
}

// DefaultOptions returns Options aligned with the config defaults.
func DefaultOptions() Options {
	return Options{
		DecayFactor:    DefaultDecayFactors(),
		PruneBelow:     0.05,
		AccessBoost:    0.05,
		PromptTokenCap: 200,
		ConflictWindow: 2 * time.Second,
		DeviceID:       "local",
	}
}

// categoryBias gives a small fixed score bonus per category, reflecting that
// some categories are generically more useful to recall than others.
var categoryBias = map[models.MemoryCategory]float64{
	models.MemoryCategoryPreference:   1.0,
	models.MemoryCategoryFact:         0.8,
	models.MemoryCategoryRelationship: 0.6,
	models.MemoryCategoryRoutine:      0.4,
}

// Conflict records a simultaneous-edit detected during Merge.
type Conflict struct {
	ID         string    `json:"id"`
	DeviceA    string    `json:"device_a"`
	DeviceB    string    `json:"device_b"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Store is a single-writer, file-backed collection of Memory facts.
type Store struct {
	mu   sync.RWMutex
	path string
	opts Options

	byID  map[string]*models.Memory
	order []string // insertion order, for stable iteration

	conflicts []Conflict
}

// fileRecord is the on-disk shape of memories.json.
type fileRecord struct {
	Memories []*models.Memory `json:"memories"`
}

// NewStore creates a Store backed by the file at path, loading any existing
// memories. opts may be zero-valued; missing fields fall back to
// DefaultOptions.
func NewStore(path string, opts Options) (*Store, error) {
	opts = fillDefaults(opts)
	s := &Store{
		path: path,
		opts: opts,
		byID: make(map[string]*models.Memory),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func fillDefaults(opts Options) Options {
	defaults := DefaultOptions()
	if opts.DecayFactor == nil {
		opts.DecayFactor = defaults.DecayFactor
	}
	if opts.PruneBelow <= 0 {
		opts.PruneBelow = defaults.PruneBelow
	}
	if opts.AccessBoost <= 0 {
		opts.AccessBoost = defaults.AccessBoost
	}
	if opts.PromptTokenCap <= 0 {
		opts.PromptTokenCap = defaults.PromptTokenCap
	}
	if opts.ConflictWindow <= 0 {
		opts.ConflictWindow = defaults.ConflictWindow
	}
	if opts.DeviceID == "" {
		opts.DeviceID = defaults.DeviceID
	}
	return opts
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read memory store: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode memory store: %w", err)
	}
	for _, m := range rec.Memories {
		if m == nil || m.ID == "" {
			continue
		}
		s.byID[m.ID] = m
		s.order = append(s.order, m.ID)
	}
	return nil
}

// writeLocked atomically replaces memories.json. Must be called with s.mu held.
func (s *Store) writeLocked() error {
	rec := fileRecord{Memories: make([]*models.Memory, 0, len(s.order))}
	for _, id := range s.order {
		if m, ok := s.byID[id]; ok {
			rec.Memories = append(rec.Memories, m)
		}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "memories-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp memory file: %w", err)
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
		return fmt.Errorf("write temp memory file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp memory file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename memory file: %w", err)
	}
	cleanup = false
	return nil
}

func normalize(content string) string {
	return strings.ToLower(strings.TrimSpace(content))
}

// Add stores a new memory. It rejects an add whose normalized content
// duplicates an existing memory.
func (s *Store) Add(content string, category models.MemoryCategory, temporal models.MemoryTemporal, related ...string) (*models.Memory, error) {
	norm := normalize(content)
	if norm == "" {
		return nil, errors.New("memory content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if existing, ok := s.byID[id]; ok && normalize(existing.Content) == norm {
			return nil, fmt.Errorf("duplicate memory: %q already stored", existing.Content)
		}
	}

	now := time.Now()
	m := &models.Memory{
		ID:         uuid.NewString(),
		Content:    strings.TrimSpace(content),
		CreatedAt:  now,
		ModifiedAt: now,
		DeviceID:   s.opts.DeviceID,
		Category:   category,
		Temporal:   temporal,
		Confidence: 1.0,
		Related:    append([]string(nil), related...),
	}
	s.byID[m.ID] = m
	s.order = append(s.order, m.ID)
	if err := s.writeLocked(); err != nil {
		return nil, err
	}
	clone := *m
	return &clone, nil
}

// Access boosts a memory's confidence by opts.AccessBoost (capped at 1.0)
// and refreshes its modifiedAt timestamp.
func (s *Store) Access(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("memory not found: %s", id)
	}
	m.Confidence = math.Min(1.0, m.Confidence+s.opts.AccessBoost)
	m.ModifiedAt = time.Now()
	return s.writeLocked()
}

// Remove deletes a memory by id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return nil
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return s.writeLocked()
}

// Clear removes every memory.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*models.Memory)
	s.order = nil
	return s.writeLocked()
}

// List returns a snapshot of all memories in insertion order.
func (s *Store) List() []*models.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Memory, 0, len(s.order))
	for _, id := range s.order {
		if m, ok := s.byID[id]; ok {
			clone := *m
			out = append(out, &clone)
		}
	}
	return out
}

// scored pairs a memory with its relevance score for a given prompt.
type scored struct {
	mem   *models.Memory
	score float64
}

// GetForPrompt scores every memory against recentTopics (a set of
// lowercased keywords drawn from the current conversation), returns the top
// results under the token cap, applies decay to everything not selected,
// and prunes memories whose confidence falls below opts.PruneBelow.
func (s *Store) GetForPrompt(recentTopics []string) ([]*models.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topicSet := make(map[string]struct{}, len(recentTopics))
	for _, t := range recentTopics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			topicSet[t] = struct{}{}
		}
	}

	now := time.Now()
	candidates := make([]scored, 0, len(s.order))
	for _, id := range s.order {
		m, ok := s.byID[id]
		if !ok {
			continue
		}
		candidates = append(candidates, scored{mem: m, score: s.score(m, topicSet, now)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	selected := make(map[string]struct{})
	out := make([]*models.Memory, 0, len(candidates))
	budget := s.opts.PromptTokenCap
	for _, c := range candidates {
		cost := estimateTokens(c.mem.Content)
		if budget > 0 && cost > budget {
			continue
		}
		clone := *c.mem
		out = append(out, &clone)
		selected[c.mem.ID] = struct{}{}
		if budget > 0 {
			budget -= cost
			if budget <= 0 {
				break
			}
		}
	}

	s.decayAndPruneLocked(selected, now)
	if err := s.writeLocked(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) score(m *models.Memory, topics map[string]struct{}, now time.Time) float64 {
	topicScore := topicOverlap(m.Content, topics)
	confidenceScore := m.Confidence
	recencyScore := recency(m.ModifiedAt, now)
	biasScore := categoryBias[m.Category]

	return 0.4*topicScore + 0.3*confidenceScore + 0.2*recencyScore + 0.1*biasScore
}

func topicOverlap(content string, topics map[string]struct{}) float64 {
	if len(topics) == 0 {
		return 0
	}
	words := strings.Fields(strings.ToLower(content))
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	hits := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := topics[w]; ok {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return math.Min(1.0, float64(hits)/float64(len(topics)))
}

// recency maps "how long ago" to a [0,1] score with a one-week half-life.
func recency(modifiedAt, now time.Time) float64 {
	if modifiedAt.IsZero() {
		return 0
	}
	age := now.Sub(modifiedAt)
	if age < 0 {
		age = 0
	}
	const halfLife = 7 * 24 * time.Hour
	return math.Exp(-math.Ln2 * float64(age) / float64(halfLife))
}

// estimateTokens uses the same ~4-chars-per-token heuristic as the context
// packer, so the memory prompt budget and the message history budget share
// one unit of account.
func estimateTokens(content string) int {
	if len(content) == 0 {
		return 0
	}
	return (len(content) + 3) / 4
}

// decayAndPruneLocked must be called with s.mu held.
func (s *Store) decayAndPruneLocked(selected map[string]struct{}, now time.Time) {
	var toRemove []string
	for _, id := range s.order {
		m, ok := s.byID[id]
		if !ok {
			continue
		}
		if _, ok := selected[id]; ok {
			continue
		}
		factor, ok := s.opts.DecayFactor[string(m.Category)]
		if !ok {
			factor = 0.98
		}
		m.Confidence *= factor
		if m.Confidence < s.opts.PruneBelow {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		delete(s.byID, id)
	}
	if len(toRemove) == 0 {
		return
	}
	removed := make(map[string]struct{}, len(toRemove))
	for _, id := range toRemove {
		removed[id] = struct{}{}
	}
	kept := s.order[:0:0]
	for _, id := range s.order {
		if _, gone := removed[id]; gone {
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Merge reconciles memories from another device into this store.
// Conflict resolution: latest-modifiedAt-wins per id; ids unique to either
// side are unioned in; when both sides modified the same id within
// opts.ConflictWindow, the conflict is logged (see Conflicts) but the
// newer timestamp still wins deterministically, with DeviceID breaking
// exact ties. This is explicitly not last-write-wins at the batch level:
// each id is resolved independently.
func (s *Store) Merge(remote []*models.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rm := range remote {
		if rm == nil || rm.ID == "" {
			continue
		}
		local, exists := s.byID[rm.ID]
		if !exists {
			clone := *rm
			s.byID[rm.ID] = &clone
			s.order = append(s.order, rm.ID)
			continue
		}

		diff := rm.ModifiedAt.Sub(local.ModifiedAt)
		if diff < 0 {
			diff = -diff
		}
		if diff <= s.opts.ConflictWindow && rm.DeviceID != local.DeviceID {
			s.conflicts = append(s.conflicts, Conflict{
				ID:         rm.ID,
				DeviceA:    local.DeviceID,
				DeviceB:    rm.DeviceID,
				ModifiedAt: now(rm.ModifiedAt, local.ModifiedAt),
			})
		}

		winner := local
		switch {
		case rm.ModifiedAt.After(local.ModifiedAt):
			winner = rm
		case rm.ModifiedAt.Equal(local.ModifiedAt) && rm.DeviceID > local.DeviceID:
			winner = rm
		}
		clone := *winner
		s.byID[rm.ID] = &clone
	}
	return s.writeLocked()
}

func now(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// Conflicts returns every simultaneous-edit conflict logged by Merge since
// the store was created.
func (s *Store) Conflicts() []Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conflict, len(s.conflicts))
	copy(out, s.conflicts)
	return out
}
