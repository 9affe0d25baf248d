package notification

import (
	"time"

	"github.com/go-notify-nosql/internal/domain"
)

// findDuplicate looks for an event with the same message (and subject id, when
// given) recorded at or after since. Events folded into bundles are matched
// through their snapshots, so a repeat is caught even after the original was
// merged. Category and recipient are already fixed by the caller's query.
func findDuplicate(recent []domain.Notification, message, subjectID string, since time.Time) *domain.Notification {
	for i := range recent {
		n := &recent[i]
		for _, item := range n.Items() {
			if item.CreatedAt.Before(since) {
				continue
			}
			if item.Message != message {
				continue
			}
			if subjectID != "" && item.SubjectID != subjectID {
				continue
			}
			return n
		}
	}
	return nil
}
