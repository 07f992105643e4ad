package registration

import (
	"fmt"
	"io"
	"sync"

	"github.com/CorrelAid/registration_uploader/models"
)

// Notifier shows transient messages to the user.
type Notifier interface {
	Notify(n models.Notification)
}

// Navigator moves the user to another route.
type Navigator interface {
	Navigate(route string)
}

// Recorder collects notifications and the last navigation target so they can
// be returned in a response.
type Recorder struct {
	mu            sync.Mutex
	notifications []models.Notification
	redirect      string
}

func (r *Recorder) Notify(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *Recorder) Navigate(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirect = route
}

func (r *Recorder) Notifications() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

func (r *Recorder) Redirect() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirect
}

// WriterNotifier prints notifications and navigation, one per line.
type WriterNotifier struct {
	W io.Writer
}

func (w WriterNotifier) Notify(n models.Notification) {
	fmt.Fprintf(w.W, "[%s] %s\n", n.Kind, n.Message)
}

func (w WriterNotifier) Navigate(route string) {
	fmt.Fprintf(w.W, "-> %s\n", route)
}
