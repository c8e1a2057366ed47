package persistence

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/cmallory/chat-relay/config"
	"github.com/cmallory/chat-relay/types"
	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
)

type BuntPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	db, err := setupBuntDB(cfg)
	if err != nil {
		return nil, err
	}
	return &BuntPersist{db}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("persistence: no DSN configured")
	}
	db, err := buntdb.Open(cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("messagets", "message:*", buntdb.IndexJSON("createdAt"))
	if err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, err
	}
	return db, nil
}

func roomKey(roomIdentifier string) string {
	return "room:" + roomIdentifier
}

// messageKey escapes the room identifier so the ":" inside identifiers cannot
// make one room's key prefix shadow another's.
func messageKey(msg *types.Message) string {
	return "message:" + url.QueryEscape(msg.RoomId) + ":" + msg.Id
}

func (p *BuntPersist) InsertRoom(room *types.Room) error {
	if room.Id == "" {
		room.Id = uuid.NewString()
	}
	val, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Get(roomKey(room.RoomIdentifier))
		if err == nil {
			return ErrDuplicateRoom
		}
		if err != buntdb.ErrNotFound {
			return err
		}
		_, _, err = tx.Set(roomKey(room.RoomIdentifier), string(val), nil)
		return err
	})
}

func (p *BuntPersist) RoomByIdentifier(roomIdentifier string) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(roomKey(roomIdentifier))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), room)
	})
	if err == buntdb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (p *BuntPersist) RoomsByMember(memberId string) ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("room:*", func(key, val string) bool {
			room := &types.Room{}
			if err := json.Unmarshal([]byte(val), room); err == nil {
				if room.MemberIds.Contains(memberId) {
					rooms = append(rooms, room)
				}
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (p *BuntPersist) AppendMessage(msg *types.Message) error {
	if msg.Id == "" {
		msg.Id = uuid.NewString()
	}
	val, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(messageKey(msg), string(val), nil)
		return err
	})
}

// MessagesByRoom walks the createdAt index in ascending order, so the result
// is chronological.
func (p *BuntPersist) MessagesByRoom(roomIdentifier string) ([]*types.Message, error) {
	msgs := make([]*types.Message, 0)
	prefix := "message:" + url.QueryEscape(roomIdentifier) + ":"
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("messagets", func(key, val string) bool {
			if !strings.HasPrefix(key, prefix) {
				return true
			}
			msg := &types.Message{}
			if err := json.Unmarshal([]byte(val), msg); err == nil {
				msgs = append(msgs, msg)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (p *BuntPersist) Close() error {
	return p.db.Close()
}
