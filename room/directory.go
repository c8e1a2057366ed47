package room

import (
	"errors"
	"time"

	"github.com/cmallory/chat-relay/persistence"
	"github.com/cmallory/chat-relay/types"
	"golang.org/x/sync/singleflight"
)

// Directory owns the room records. It is the only component that creates
// rooms; everything else references a room by its identifier.
type Directory struct {
	store persistence.Persister
	group singleflight.Group
}

func NewDirectory(store persistence.Persister) *Directory {
	return &Directory{store: store}
}

// FindOrCreate returns the room for the given member set, creating it on
// first contact. Concurrent calls for the same member set are collapsed into
// a single lookup-or-create, and a duplicate-creation conflict (f.e. a second
// process racing on the same store) is resolved by re-querying and returning
// the winner. The member set may have any size >= 1.
func (d *Directory) FindOrCreate(memberIds []string) (*types.Room, error) {
	if len(memberIds) == 0 {
		return nil, errors.New("room: empty member set")
	}
	key := types.RoomKey(memberIds)
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		room, err := d.store.RoomByIdentifier(key)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return nil, err
		}
		now := time.Now()
		room = &types.Room{
			RoomIdentifier: key,
			MemberIds:      types.RoomKeyMembers(key),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := d.store.InsertRoom(room); err != nil {
			if errors.Is(err, persistence.ErrDuplicateRoom) {
				return d.store.RoomByIdentifier(key)
			}
			return nil, err
		}
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Room), nil
}

// FindByIdentifier looks up a room by its canonical identifier.
func (d *Directory) FindByIdentifier(roomIdentifier string) (*types.Room, error) {
	return d.store.RoomByIdentifier(roomIdentifier)
}

// ListForMember returns all rooms containing the member, order unspecified.
func (d *Directory) ListForMember(memberId string) ([]*types.Room, error) {
	return d.store.RoomsByMember(memberId)
}
