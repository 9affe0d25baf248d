package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-notify-nosql/internal/domain"
)

// Stats is a point-in-time view of live realtime sessions.
type Stats struct {
	OnlineRecipients int            `json:"online_users"`
	Connections      int            `json:"total_connections"`
	PerRecipient     map[string]int `json:"connections_per_user"`
}

// Registry maps recipients to their live transport connections. A connection
// may join several recipients and a recipient may have many connections.
// State is in-memory only; clients re-join after a restart.
type Registry struct {
	mu          sync.RWMutex
	byRecipient map[string]map[string]struct{}
	byConn      map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byRecipient: make(map[string]map[string]struct{}),
		byConn:      make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Join(recipientID, connID string) error {
	if recipientID == "" || connID == "" {
		return fmt.Errorf("recipient id and connection id are required: %w", domain.ErrBadRequest)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	add(r.byRecipient, recipientID, connID)
	add(r.byConn, connID, recipientID)
	return nil
}

// Leave removes one (recipient, connection) pair and reports whether it existed.
func (r *Registry) Leave(recipientID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRecipient[recipientID][connID]; !ok {
		return false
	}
	remove(r.byRecipient, recipientID, connID)
	remove(r.byConn, connID, recipientID)
	return true
}

// OnDisconnect drops connID from every recipient it had joined and returns
// those recipients.
func (r *Registry) OnDisconnect(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recipients []string
	for rid := range r.byConn[connID] {
		remove(r.byRecipient, rid, connID)
		recipients = append(recipients, rid)
	}
	delete(r.byConn, connID)
	sort.Strings(recipients)
	return recipients
}

func (r *Registry) IsOnline(recipientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRecipient[recipientID]) > 0
}

func (r *Registry) ConnectionsFor(recipientID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.byRecipient[recipientID])
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		OnlineRecipients: len(r.byRecipient),
		Connections:      len(r.byConn),
		PerRecipient:     make(map[string]int, len(r.byRecipient)),
	}
	for rid, conns := range r.byRecipient {
		s.PerRecipient[rid] = len(conns)
	}
	return s
}

func add(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		set = make(map[string]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

// remove deletes v from m[k], dropping m[k] once empty.
func remove(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, v)
	if len(set) == 0 {
		delete(m, k)
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
