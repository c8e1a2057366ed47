package persistence

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cmallory/chat-relay/config"
	"github.com/cmallory/chat-relay/types"
)

func testBackends(t *testing.T) map[string]Persister {
	t.Helper()
	backends := make(map[string]Persister)

	sqliteCfg := &config.Config{PersistenceConfig: config.PersistenceConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "test.db"),
	}}
	sp, err := NewPersister(sqliteCfg)
	if err != nil {
		t.Fatal(err)
	}
	backends["sqlite"] = sp

	buntCfg := &config.Config{PersistenceConfig: config.PersistenceConfig{
		Type: "buntdb",
		DSN:  ":memory:",
	}}
	bp, err := NewPersister(buntCfg)
	if err != nil {
		t.Fatal(err)
	}
	backends["buntdb"] = bp

	t.Cleanup(func() {
		sp.Close()
		bp.Close()
	})
	return backends
}

func TestRoomRoundTrip(t *testing.T) {
	for name, p := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			room := &types.Room{
				RoomIdentifier: "u1:u2",
				MemberIds:      types.JSONStringSlice{"u1", "u2"},
				CreatedAt:      time.Now(),
				UpdatedAt:      time.Now(),
			}
			if err := p.InsertRoom(room); err != nil {
				t.Fatal(err)
			}
			if room.Id == "" {
				t.Fatal("expected an assigned room id")
			}
			got, err := p.RoomByIdentifier("u1:u2")
			if err != nil {
				t.Fatal(err)
			}
			if got.Id != room.Id {
				t.Fatalf("got id %q, want %q", got.Id, room.Id)
			}
			if !got.MemberIds.Contains("u1") || !got.MemberIds.Contains("u2") {
				t.Fatalf("member ids not preserved: %v", got.MemberIds)
			}
		})
	}
}

func TestInsertRoomDuplicate(t *testing.T) {
	for name, p := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			room := &types.Room{RoomIdentifier: "u1:u2", MemberIds: types.JSONStringSlice{"u1", "u2"}}
			if err := p.InsertRoom(room); err != nil {
				t.Fatal(err)
			}
			again := &types.Room{RoomIdentifier: "u1:u2", MemberIds: types.JSONStringSlice{"u1", "u2"}}
			if err := p.InsertRoom(again); !errors.Is(err, ErrDuplicateRoom) {
				t.Fatalf("got %v, want ErrDuplicateRoom", err)
			}
		})
	}
}

func TestRoomByIdentifierNotFound(t *testing.T) {
	for name, p := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := p.RoomByIdentifier("missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRoomsByMember(t *testing.T) {
	for name, p := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			rooms := []*types.Room{
				{RoomIdentifier: "u1:u2", MemberIds: types.JSONStringSlice{"u1", "u2"}},
				{RoomIdentifier: "u1:u3", MemberIds: types.JSONStringSlice{"u1", "u3"}},
				{RoomIdentifier: "u2:u3", MemberIds: types.JSONStringSlice{"u2", "u3"}},
			}
			for _, room := range rooms {
				if err := p.InsertRoom(room); err != nil {
					t.Fatal(err)
				}
			}
			got, err := p.RoomsByMember("u1")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d rooms, want 2", len(got))
			}
			for _, room := range got {
				if !room.MemberIds.Contains("u1") {
					t.Fatalf("room %s does not contain u1", room.RoomIdentifier)
				}
			}
		})
	}
}

func TestMessagesByRoomChronological(t *testing.T) {
	for name, p := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			room := &types.Room{RoomIdentifier: "u1:u2", MemberIds: types.JSONStringSlice{"u1", "u2"}}
			if err := p.InsertRoom(room); err != nil {
				t.Fatal(err)
			}
			base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
			bodies := []string{"first", "second", "third"}
			// appended out of order, the read side must sort by time
			for _, i := range []int{1, 0, 2} {
				msg := &types.Message{
					RoomId:    "u1:u2",
					SenderId:  "u1",
					Message:   bodies[i],
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}
				if err := p.AppendMessage(msg); err != nil {
					t.Fatal(err)
				}
			}
			got, err := p.MessagesByRoom("u1:u2")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 3 {
				t.Fatalf("got %d messages, want 3", len(got))
			}
			for i, msg := range got {
				if msg.Message != bodies[i] {
					t.Fatalf("position %d: got %q, want %q", i, msg.Message, bodies[i])
				}
			}
		})
	}
}

func TestMessagesByRoomIsolatesRooms(t *testing.T) {
	for name, p := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			// "a:b" must not shadow "a:b:c" even though it is a key prefix
			for _, roomId := range []string{"a:b", "a:b:c"} {
				msg := &types.Message{RoomId: roomId, SenderId: "a", Message: "for " + roomId, CreatedAt: time.Now()}
				if err := p.AppendMessage(msg); err != nil {
					t.Fatal(err)
				}
			}
			got, err := p.MessagesByRoom("a:b")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 {
				t.Fatalf("got %d messages, want 1", len(got))
			}
			if got[0].Message != "for a:b" {
				t.Fatalf("got %q", got[0].Message)
			}
		})
	}
}

func TestNewPersisterUnknownBackend(t *testing.T) {
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{Type: "etcd", DSN: "x"}}
	if _, err := NewPersister(cfg); err == nil {
		t.Fatal("expected an error for an unknown backend type")
	}
}
