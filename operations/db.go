package operations

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/CorrelAid/registration_uploader/inits"
	"github.com/CorrelAid/registration_uploader/models"
	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
)

// Sessions stores form sessions in memdb. Write transactions are serialized
// by memdb, which is what makes the loading flag a real gate.
type Sessions struct {
	db  *memdb.MemDB
	ttl time.Duration
	now func() time.Time
}

func NewSessions(db *memdb.MemDB, ttl time.Duration) *Sessions {
	return &Sessions{db: db, ttl: ttl, now: time.Now}
}

// Create inserts an empty session with a fresh ID.
func (s *Sessions) Create() (*models.Session, error) {
	now := s.now()
	session := &models.Session{
		ID:      uuid.NewString(),
		Created: now.Format(time.RFC3339),
		Expiry:  now.Add(s.ttl).Format(time.RFC3339),
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(inits.SessionTable, session); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	txn.Commit()

	slog.Debug("created session", "session", session.ID)
	return session.Copy(), nil
}

func (s *Sessions) Get(id string) (*models.Session, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	session, err := s.get(txn, id)
	if err != nil {
		return nil, err
	}
	return session.Copy(), nil
}

// Update applies fn to a copy of the session inside one write transaction.
// If fn returns an error nothing is written.
func (s *Sessions) Update(id string, fn func(*models.Session) error) (*models.Session, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	current, err := s.get(txn, id)
	if err != nil {
		return nil, err
	}

	next := current.Copy()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Expiry = s.now().Add(s.ttl).Format(time.RFC3339)

	if err := txn.Insert(inits.SessionTable, next); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	txn.Commit()
	return next.Copy(), nil
}

func (s *Sessions) Delete(id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	session, err := s.get(txn, id)
	if err != nil {
		return err
	}
	if err := txn.Delete(inits.SessionTable, session); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	txn.Commit()

	slog.Debug("deleted session", "session", id)
	return nil
}

func (s *Sessions) get(txn *memdb.Txn, id string) (*models.Session, error) {
	raw, err := txn.First(inits.SessionTable, "id", id)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if raw == nil {
		return nil, models.ErrSessionNotFound
	}
	return raw.(*models.Session), nil
}
