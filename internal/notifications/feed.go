package notifications

import (
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// Feed is the in-process "live" list behind the notification badge. It is
// capped, newest first, and rebuilt from its seed every time the process
// starts; the durable repository keeps the full history.
type Feed struct {
	mu    sync.RWMutex
	limit int
	items []models.Notification
}

func NewFeed(limit int, seed []models.Notification) *Feed {
	if limit <= 0 {
		limit = 50
	}
	f := &Feed{limit: limit}
	for i := len(seed) - 1; i >= 0; i-- {
		f.Push(seed[i])
	}
	return f
}

// Push prepends n, dropping the oldest entry once the cap is reached.
func (f *Feed) Push(n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]models.Notification{n}, f.items...)
	if len(f.items) > f.limit {
		f.items = f.items[:f.limit]
	}
}

// List returns up to limit entries addressed to recipient, newest first.
func (f *Feed) List(party enums.Party, recipientID uuid.UUID, limit int) []models.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := []models.Notification{}
	for _, n := range f.items {
		if n.Party != party || n.RecipientID != recipientID {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}
