package videostore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/vaultstream/vaultstream/internal/model"
)

// memory implements Store using in-memory storage. Intended for development
// and testing.
type memory struct {
	mu     sync.RWMutex
	videos map[string]*model.Video
}

// NewMemory creates a new in-memory videostore.
func NewMemory() Store {
	return &memory{videos: make(map[string]*model.Video)}
}

func (m *memory) Create(ctx context.Context, v model.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.videos[v.ID]; exists {
		return ErrConflict
	}
	vCopy := v
	m.videos[v.ID] = &vCopy
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*model.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, exists := m.videos[id]
	if !exists {
		return nil, ErrNotFound
	}
	vCopy := *v
	return &vCopy, nil
}

func (m *memory) UpdateStatus(ctx context.Context, id string, expected, next model.Status, mutate func(*model.Video)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, exists := m.videos[id]
	if !exists {
		return ErrNotFound
	}
	if v.Status != expected {
		return ErrConflict
	}
	v.Status = next
	v.UpdatedAt = nowUTC()
	if mutate != nil {
		mutate(v)
	}
	return nil
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.videos[id]; !exists {
		return ErrNotFound
	}
	delete(m.videos, id)
	return nil
}

type memoryCursor struct {
	LastCreatedAt int64  `json:"lastCreatedAt"`
	LastID        string `json:"lastId"`
}

func encodeMemoryCursor(createdAt time.Time, id string) string {
	data := memoryCursor{LastCreatedAt: createdAt.UnixNano(), LastID: id}
	b, _ := json.Marshal(data)
	return base64.URLEncoding.EncodeToString(b)
}

func decodeMemoryCursor(cursor string) (memoryCursor, error) {
	var data memoryCursor
	b, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return data, err
	}
	err = json.Unmarshal(b, &data)
	return data, err
}

func (m *memory) ListByStatus(ctx context.Context, status model.Status, limit int, cursor string) ([]model.Video, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*model.Video, 0)
	for _, v := range m.videos {
		if v.Status == status {
			matched = append(matched, v)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	start := 0
	if cursor != "" {
		c, err := decodeMemoryCursor(cursor)
		if err == nil {
			for i, v := range matched {
				if v.CreatedAt.UnixNano() > c.LastCreatedAt ||
					(v.CreatedAt.UnixNano() == c.LastCreatedAt && v.ID > c.LastID) {
					start = i
					break
				}
			}
		}
	}

	if limit <= 0 {
		limit = 25
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := matched[start:end]

	result := make([]model.Video, len(page))
	for i, v := range page {
		result[i] = *v
	}

	var next string
	if end < len(matched) && len(result) > 0 {
		last := result[len(result)-1]
		next = encodeMemoryCursor(last.CreatedAt, last.ID)
	}

	return result, next, nil
}
