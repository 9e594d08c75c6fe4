package hooks

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Category names a capability plugins can hook into. Queries never cross
// categories: an auth query only reaches auth hooks.
type Category string

const (
	CategoryAuth         Category = "auth"
	CategoryMedia        Category = "media"
	CategorySearch       Category = "search"
	CategoryNotification Category = "notification"
	CategoryPayment      Category = "payment"
	CategoryUser         Category = "user"
)

// Categories lists every hook category in a fixed order.
var Categories = []Category{
	CategoryAuth,
	CategoryMedia,
	CategorySearch,
	CategoryNotification,
	CategoryPayment,
	CategoryUser,
}

var (
	ErrEmptyPluginID = errors.New("plugin id must not be empty")
	ErrNilHook       = errors.New("hook implementation must not be nil")
)

// FailureObserver is notified every time a hook fails during a query.
type FailureObserver interface {
	HookFailed(category Category, pluginID, operation string)
}

// Registry holds one hook implementation per (category, plugin id). It is
// created by the composition root and shared by reference; all methods are
// safe for concurrent use. Hooks are always invoked outside the lock.
type Registry struct {
	mu sync.RWMutex

	auth         *hookSet[AuthHook]
	media        *hookSet[MediaHook]
	search       *hookSet[SearchHook]
	notification *hookSet[NotificationHook]
	payment      *hookSet[PaymentHook]
	user         *hookSet[UserHook]

	observer FailureObserver
	logger   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithFailureObserver reports hook failures to o (typically a metrics collector).
func WithFailureObserver(o FailureObserver) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

// NewRegistry creates an empty hook registry.
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		auth:         newHookSet[AuthHook](),
		media:        newHookSet[MediaHook](),
		search:       newHookSet[SearchHook](),
		notification: newHookSet[NotificationHook](),
		payment:      newHookSet[PaymentHook](),
		user:         newHookSet[UserHook](),
		logger:       logger.With(zap.String("component", "hook_registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterAuthHook stores h as the auth hook of pluginID, replacing any previous one.
func (r *Registry) RegisterAuthHook(pluginID string, h AuthHook) error {
	return register(r, CategoryAuth, r.auth, pluginID, h)
}

// RegisterMediaHook stores h as the media hook of pluginID.
func (r *Registry) RegisterMediaHook(pluginID string, h MediaHook) error {
	return register(r, CategoryMedia, r.media, pluginID, h)
}

// RegisterSearchHook stores h as the search hook of pluginID.
func (r *Registry) RegisterSearchHook(pluginID string, h SearchHook) error {
	return register(r, CategorySearch, r.search, pluginID, h)
}

// RegisterNotificationHook stores h as the notification hook of pluginID.
func (r *Registry) RegisterNotificationHook(pluginID string, h NotificationHook) error {
	return register(r, CategoryNotification, r.notification, pluginID, h)
}

// RegisterPaymentHook stores h as the payment hook of pluginID.
func (r *Registry) RegisterPaymentHook(pluginID string, h PaymentHook) error {
	return register(r, CategoryPayment, r.payment, pluginID, h)
}

// RegisterUserHook stores h as the user-extension hook of pluginID.
func (r *Registry) RegisterUserHook(pluginID string, h UserHook) error {
	return register(r, CategoryUser, r.user, pluginID, h)
}

func register[H any](r *Registry, cat Category, set *hookSet[H], pluginID string, h H) error {
	if pluginID == "" {
		return fmt.Errorf("register %s hook: %w", cat, ErrEmptyPluginID)
	}
	if any(h) == nil {
		return fmt.Errorf("register %s hook for %s: %w", cat, pluginID, ErrNilHook)
	}

	r.mu.Lock()
	replaced := set.put(pluginID, h)
	r.mu.Unlock()

	r.logger.Debug("hook registered",
		zap.String("category", string(cat)),
		zap.String("plugin", pluginID),
		zap.Bool("replaced", replaced))
	return nil
}

// Has reports whether pluginID has a hook registered in cat.
func (r *Registry) Has(cat Category, pluginID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch cat {
	case CategoryAuth:
		return r.auth.has(pluginID)
	case CategoryMedia:
		return r.media.has(pluginID)
	case CategorySearch:
		return r.search.has(pluginID)
	case CategoryNotification:
		return r.notification.has(pluginID)
	case CategoryPayment:
		return r.payment.has(pluginID)
	case CategoryUser:
		return r.user.has(pluginID)
	}
	return false
}

// ClearPlugin removes every hook pluginID registered and returns how many
// entries were dropped.
func (r *Registry) ClearPlugin(pluginID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, ok := range []bool{
		r.auth.remove(pluginID),
		r.media.remove(pluginID),
		r.search.remove(pluginID),
		r.notification.remove(pluginID),
		r.payment.remove(pluginID),
		r.user.remove(pluginID),
	} {
		if ok {
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("plugin hooks cleared", zap.String("plugin", pluginID), zap.Int("count", removed))
	}
	return removed
}

// ClearAll empties every category.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.auth.reset()
	r.media.reset()
	r.search.reset()
	r.notification.reset()
	r.payment.reset()
	r.user.reset()
	r.logger.Info("all hooks cleared")
}

// All returns the plugin ids registered per category, in registration order.
// Intended for debugging and the admin API.
func (r *Registry) All() map[Category][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[Category][]string{
		CategoryAuth:         r.auth.ids(),
		CategoryMedia:        r.media.ids(),
		CategorySearch:       r.search.ids(),
		CategoryNotification: r.notification.ids(),
		CategoryPayment:      r.payment.ids(),
		CategoryUser:         r.user.ids(),
	}
}

// hookSet keeps implementations keyed by plugin id while remembering the
// order plugins first registered in. Replacing an entry keeps its position.
type hookSet[H any] struct {
	order []string
	impls map[string]H
}

type hookEntry[H any] struct {
	pluginID string
	hook     H
}

func newHookSet[H any]() *hookSet[H] {
	return &hookSet[H]{impls: make(map[string]H)}
}

func (s *hookSet[H]) put(pluginID string, h H) bool {
	_, exists := s.impls[pluginID]
	if !exists {
		s.order = append(s.order, pluginID)
	}
	s.impls[pluginID] = h
	return exists
}

func (s *hookSet[H]) get(pluginID string) (H, bool) {
	h, ok := s.impls[pluginID]
	return h, ok
}

func (s *hookSet[H]) has(pluginID string) bool {
	_, ok := s.impls[pluginID]
	return ok
}

func (s *hookSet[H]) remove(pluginID string) bool {
	if _, ok := s.impls[pluginID]; !ok {
		return false
	}
	delete(s.impls, pluginID)
	for i, id := range s.order {
		if id == pluginID {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *hookSet[H]) reset() {
	s.order = nil
	s.impls = make(map[string]H)
}

func (s *hookSet[H]) ids() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *hookSet[H]) snapshot() []hookEntry[H] {
	out := make([]hookEntry[H], 0, len(s.order))
	for _, id := range s.order {
		out = append(out, hookEntry[H]{pluginID: id, hook: s.impls[id]})
	}
	return out
}
