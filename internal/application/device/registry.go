package device

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/pkg/validate"
)

type tokenStore interface {
	Put(ctx context.Context, t *domain.DeviceToken) error
	ListByRecipient(ctx context.Context, recipientID string) ([]domain.DeviceToken, error)
	Delete(ctx context.Context, recipientID, token string) error
	DeleteTokens(ctx context.Context, tokens []string) error
}

// Registry tracks which push tokens belong to which recipient. It is an
// in-memory cache; when a store is configured every change is written through
// and a recipient's tokens are loaded on first lookup.
type Registry struct {
	store tokenStore // optional
	now   func() time.Time

	mu          sync.RWMutex
	byRecipient map[string]map[string]domain.DeviceToken // recipient -> token -> record
	owner       map[string]string                        // token -> recipient
	loaded      map[string]bool
}

func NewRegistry(store tokenStore) *Registry {
	return &Registry{
		store:       store,
		now:         time.Now,
		byRecipient: make(map[string]map[string]domain.DeviceToken),
		owner:       make(map[string]string),
		loaded:      make(map[string]bool),
	}
}

// Register upserts a token for recipientID. A token registered under another
// recipient moves to the new one.
func (r *Registry) Register(ctx context.Context, recipientID string, req domain.RegisterTokenRequest) (*domain.DeviceToken, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("recipient id is required: %w", domain.ErrBadRequest)
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	now := r.now().UTC()
	t := domain.DeviceToken{
		Token:       req.Token,
		RecipientID: recipientID,
		Platform:    req.Platform,
		DeviceID:    req.DeviceID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.RLock()
	if prev, ok := r.byRecipient[recipientID][req.Token]; ok {
		t.CreatedAt = prev.CreatedAt
	}
	r.mu.RUnlock()

	if r.store != nil {
		if err := r.store.Put(ctx, &t); err != nil {
			return nil, fmt.Errorf("store device token: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(req.Token)
	set, ok := r.byRecipient[recipientID]
	if !ok {
		set = make(map[string]domain.DeviceToken)
		r.byRecipient[recipientID] = set
	}
	set[req.Token] = t
	r.owner[req.Token] = recipientID
	return &t, nil
}

// Unregister removes token if it belongs to recipientID.
func (r *Registry) Unregister(ctx context.Context, recipientID, token string) error {
	if token == "" {
		return fmt.Errorf("token is required: %w", domain.ErrBadRequest)
	}
	if r.store != nil {
		if err := r.store.Delete(ctx, recipientID, token); err != nil {
			return err
		}
	} else {
		r.mu.RLock()
		owner, ok := r.owner[token]
		r.mu.RUnlock()
		if !ok || owner != recipientID {
			return fmt.Errorf("device token not found: %w", domain.ErrNotFound)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner[token] == recipientID {
		r.removeLocked(token)
	}
	return nil
}

// TokensFor returns recipientID's tokens in a stable order. Lookup failures
// are logged and yield whatever the cache holds.
func (r *Registry) TokensFor(ctx context.Context, recipientID string) []string {
	if err := r.load(ctx, recipientID); err != nil {
		slog.Warn("could not load device tokens", "user_id", recipientID, "err", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tokens := make([]string, 0, len(r.byRecipient[recipientID]))
	for tok := range r.byRecipient[recipientID] {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}

// Invalidate drops tokens the push provider rejected permanently.
func (r *Registry) Invalidate(ctx context.Context, tokens ...string) {
	if len(tokens) == 0 {
		return
	}
	r.mu.Lock()
	for _, tok := range tokens {
		r.removeLocked(tok)
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.DeleteTokens(ctx, tokens); err != nil {
			slog.Warn("could not delete invalid device tokens", "count", len(tokens), "err", err)
			return
		}
	}
	slog.Info("pruned invalid device tokens", "count", len(tokens))
}

func (r *Registry) load(ctx context.Context, recipientID string) error {
	if r.store == nil {
		return nil
	}
	r.mu.RLock()
	done := r.loaded[recipientID]
	r.mu.RUnlock()
	if done {
		return nil
	}

	stored, err := r.store.ListByRecipient(ctx, recipientID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded[recipientID] {
		return nil
	}
	r.loaded[recipientID] = true
	for _, t := range stored {
		if _, taken := r.owner[t.Token]; taken {
			continue
		}
		set, ok := r.byRecipient[recipientID]
		if !ok {
			set = make(map[string]domain.DeviceToken)
			r.byRecipient[recipientID] = set
		}
		set[t.Token] = t
		r.owner[t.Token] = recipientID
	}
	return nil
}

// removeLocked deletes token from whichever recipient owns it. Callers hold r.mu.
func (r *Registry) removeLocked(token string) {
	rid, ok := r.owner[token]
	if !ok {
		return
	}
	delete(r.owner, token)
	delete(r.byRecipient[rid], token)
	if len(r.byRecipient[rid]) == 0 {
		delete(r.byRecipient, rid)
	}
}
