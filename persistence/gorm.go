package persistence

import (
	"errors"
	"fmt"

	"github.com/cmallory/chat-relay/config"
	"github.com/cmallory/chat-relay/types"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("persistence: no DSN configured")
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&types.Room{}, &types.Message{}); err != nil {
		return nil, err
	}
	return db, nil
}

func (p *GormPersist) InsertRoom(room *types.Room) error {
	if room.Id == "" {
		room.Id = uuid.NewString()
	}
	err := p.db.Create(room).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRoom
	}
	return err
}

func (p *GormPersist) RoomByIdentifier(roomIdentifier string) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.Where("room_identifier = ?", roomIdentifier).First(room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// RoomsByMember returns every room containing the member. Membership lives in
// a JSON column, so the containment check happens here rather than in a
// dialect-specific query.
func (p *GormPersist) RoomsByMember(memberId string) ([]*types.Room, error) {
	all := make([]*types.Room, 0)
	if err := p.db.Find(&all).Error; err != nil {
		return nil, err
	}
	rooms := make([]*types.Room, 0, len(all))
	for _, room := range all {
		if room.MemberIds.Contains(memberId) {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

func (p *GormPersist) AppendMessage(msg *types.Message) error {
	if msg.Id == "" {
		msg.Id = uuid.NewString()
	}
	return p.db.Create(msg).Error
}

func (p *GormPersist) MessagesByRoom(roomIdentifier string) ([]*types.Message, error) {
	msgs := make([]*types.Message, 0)
	err := p.db.Where("room_id = ?", roomIdentifier).Order("created_at ASC").Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (p *GormPersist) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
