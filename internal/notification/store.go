package notification

import (
	"cmp"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultExpiry is how long notifications are kept when no expiry is set.
const DefaultExpiry = 24 * time.Hour

// Store keeps notifications in memory and drops them when they expire.
// Safe for concurrent use.
type Store struct {
	cache  *cache.Cache
	expiry time.Duration
}

// NewStore creates a store whose entries expire after expiry.
func NewStore(expiry time.Duration) *Store {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Store{
		cache:  cache.New(expiry, expiry/2),
		expiry: expiry,
	}
}

// Save stores a copy of n. A notification without ExpiresAt gets the
// store's default expiry.
func (s *Store) Save(n *Notification) {
	stored := n.Clone()
	if stored.ExpiresAt == nil {
		stored.WithExpiry(s.expiry)
	}
	ttl := time.Until(*stored.ExpiresAt)
	if ttl <= 0 {
		return
	}
	s.cache.Set(stored.ID, stored, ttl)
}

// Get returns a copy of the notification with id.
func (s *Store) Get(id string) (*Notification, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrNotificationNotFound
	}
	return v.(*Notification).Clone(), nil
}

// List returns matching notifications, newest first.
func (s *Store) List(filter *FilterOptions) []*Notification {
	items := s.cache.Items()
	out := make([]*Notification, 0, len(items))
	for _, item := range items {
		n := item.Object.(*Notification)
		if filter != nil && !filter.matches(n) {
			continue
		}
		out = append(out, n.Clone())
	}

	slices.SortFunc(out, func(a, b *Notification) int {
		return cmp.Or(b.Timestamp.Compare(a.Timestamp), cmp.Compare(a.ID, b.ID))
	})
	if filter != nil && filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (f *FilterOptions) matches(n *Notification) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, n.Type) {
		return false
	}
	if f.UnreadOnly && n.Status != StatusUnread {
		return false
	}
	if f.Component != "" && n.Component != f.Component {
		return false
	}
	return true
}

// MarkAsRead flags a notification as read, keeping its expiry.
func (s *Store) MarkAsRead(id string) error {
	v, expiresAt, ok := s.cache.GetWithExpiration(id)
	if !ok {
		return ErrNotificationNotFound
	}
	updated := v.(*Notification).Clone()
	updated.Status = StatusRead
	s.cache.Set(id, updated, time.Until(expiresAt))
	return nil
}

// Delete removes a notification. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	s.cache.Delete(id)
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	return len(s.List(&FilterOptions{UnreadOnly: true}))
}
