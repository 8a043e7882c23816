// Package presence tracks which groups each user is actively connected to.
//
// A group is active for a user while at least one of that user's connections
// is joined to the group's room. The tracker reports transitions so callers
// emit exactly one presence-active when a group becomes active for a user and
// exactly one presence-inactive when it stops being active.
package presence

import (
	"sort"
	"sync"
)

type Tracker struct {
	mu sync.Mutex
	// userID -> groupID -> connection ids joined to that group
	users map[string]map[string]map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]map[string]map[string]struct{})}
}

// Add records that connID joined groupID. It reports whether the group just
// became active for the user.
func (t *Tracker) Add(userID, groupID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	groups := t.users[userID]
	if groups == nil {
		groups = make(map[string]map[string]struct{})
		t.users[userID] = groups
	}
	conns := groups[groupID]
	first := len(conns) == 0
	if conns == nil {
		conns = make(map[string]struct{})
		groups[groupID] = conns
	}
	conns[connID] = struct{}{}
	return first
}

// Remove records that connID left groupID. It reports whether the group just
// became inactive for the user. Removing an unknown pair is a no-op.
func (t *Tracker) Remove(userID, groupID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(userID, groupID, connID)
}

func (t *Tracker) removeLocked(userID, groupID, connID string) bool {
	groups, ok := t.users[userID]
	if !ok {
		return false
	}
	conns, ok := groups[groupID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) > 0 {
		return false
	}
	delete(groups, groupID)
	if len(groups) == 0 {
		delete(t.users, userID)
	}
	return true
}

// RemoveConnection drops connID from every group of the user and returns,
// sorted, the groups that became inactive as a result.
func (t *Tracker) RemoveConnection(userID, connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	groups := t.users[userID]
	candidates := make([]string, 0, len(groups))
	for groupID, conns := range groups {
		if _, ok := conns[connID]; ok {
			candidates = append(candidates, groupID)
		}
	}

	var emptied []string
	for _, groupID := range candidates {
		if t.removeLocked(userID, groupID, connID) {
			emptied = append(emptied, groupID)
		}
	}
	sort.Strings(emptied)
	return emptied
}

// Groups returns the user's active groups, sorted.
func (t *Tracker) Groups(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	groups := t.users[userID]
	out := make([]string, 0, len(groups))
	for groupID := range groups {
		out = append(out, groupID)
	}
	sort.Strings(out)
	return out
}

// Connections returns the user's connections joined to groupID, sorted.
func (t *Tracker) Connections(userID, groupID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns := t.users[userID][groupID]
	out := make([]string, 0, len(conns))
	for connID := range conns {
		out = append(out, connID)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) IsActive(userID, groupID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users[userID][groupID]) > 0
}

// Users returns the number of users with at least one active group.
func (t *Tracker) Users() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users = make(map[string]map[string]map[string]struct{})
}
