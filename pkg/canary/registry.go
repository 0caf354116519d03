package canary

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry stores prompt versions. Versions are immutable once created;
// only the active flag may flip as part of a promotion.
//
// Implementations must be safe for concurrent use.
type Registry interface {
	// CreateVersion registers a new version of the prompt and returns a copy.
	CreateVersion(promptID, text string) (*PromptVersion, error)

	// GetVersion returns a copy of the version or a NotFoundError.
	GetVersion(id string) (*PromptVersion, error)

	// ListVersions returns copies of all versions of a prompt ordered by Number.
	ListVersions(promptID string) []*PromptVersion

	// SetActive flips the active flag of a version.
	SetActive(id string, active bool) error
}

// MemoryRegistry is the in-process Registry used by the controller.
type MemoryRegistry struct {
	mu       sync.RWMutex
	versions map[string]*PromptVersion
	byPrompt map[string][]string
	now      func() time.Time
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		versions: make(map[string]*PromptVersion),
		byPrompt: make(map[string][]string),
		now:      time.Now,
	}
}

// CreateVersion registers a new version with the next sequence number for the prompt.
func (r *MemoryRegistry) CreateVersion(promptID, text string) (*PromptVersion, error) {
	if strings.TrimSpace(promptID) == "" {
		return nil, validationf("prompt_id", "must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, validationf("text", "must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	number := 1
	for _, id := range r.byPrompt[promptID] {
		if v := r.versions[id]; v.Number >= number {
			number = v.Number + 1
		}
	}

	v := &PromptVersion{
		ID:        uuid.New().String(),
		PromptID:  promptID,
		Number:    number,
		Text:      text,
		CreatedAt: r.now().UTC(),
	}
	r.versions[v.ID] = v
	r.byPrompt[promptID] = append(r.byPrompt[promptID], v.ID)

	out := *v
	return &out, nil
}

// Add inserts an existing version, used when restoring from storage.
// Adding a version whose ID is already present is a no-op.
func (r *MemoryRegistry) Add(v *PromptVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.versions[v.ID]; exists {
		return
	}
	cp := *v
	r.versions[v.ID] = &cp
	r.byPrompt[v.PromptID] = append(r.byPrompt[v.PromptID], v.ID)
}

// GetVersion returns a copy of the version.
func (r *MemoryRegistry) GetVersion(id string) (*PromptVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.versions[id]
	if !ok {
		return nil, &NotFoundError{Kind: "version", ID: id}
	}
	out := *v
	return &out, nil
}

// ListVersions returns all versions of a prompt ordered by Number.
func (r *MemoryRegistry) ListVersions(promptID string) []*PromptVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byPrompt[promptID]
	out := make([]*PromptVersion, 0, len(ids))
	for _, id := range ids {
		cp := *r.versions[id]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// SetActive flips the active flag of a version.
func (r *MemoryRegistry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.versions[id]
	if !ok {
		return &NotFoundError{Kind: "version", ID: id}
	}
	v.IsActive = active
	return nil
}
