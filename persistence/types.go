package persistence

import (
	"errors"
	"fmt"

	"github.com/cmallory/chat-relay/config"
	"github.com/cmallory/chat-relay/types"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")

	// ErrDuplicateRoom is returned when a room with the same identifier
	// already exists. Callers resolve the race by re-querying.
	ErrDuplicateRoom = errors.New("persistence: duplicate room identifier")
)

// Persister is the storage boundary for rooms and messages. Insert and append
// operations assign storage ids to records that do not carry one yet.
type Persister interface {
	InsertRoom(room *types.Room) error
	RoomByIdentifier(roomIdentifier string) (*types.Room, error)
	RoomsByMember(memberId string) ([]*types.Room, error)
	AppendMessage(msg *types.Message) error
	MessagesByRoom(roomIdentifier string) ([]*types.Message, error)
	Close() error
}

// NewPersister builds the Persister selected by the configuration.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	case "buntdb":
		return NewBuntPersister(cfg)
	case "":
		return nil, fmt.Errorf("persistence: no backend configured")
	}
	return nil, fmt.Errorf("persistence: unknown backend %q", cfg.PersistenceConfig.Type)
}
