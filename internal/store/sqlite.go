package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultDSN keeps the store in memory so it lives exactly as long as
// the process.
const DefaultDSN = "file::memory:?cache=shared"

type SqliteRepository struct {
	db *gorm.DB
}

func NewSqliteRepository(dsn string) (*SqliteRepository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// a single connection avoids "database is locked" on the shared
	// in-memory database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Identity{}, &Room{}, &Message{}); err != nil {
		return nil, err
	}

	return &SqliteRepository{db: db}, nil
}

func (r *SqliteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *SqliteRepository) CreateIdentity(name string) (Identity, error) {
	identity := Identity{
		Name:      name,
		NameLower: strings.ToLower(name),
		CreatedAt: time.Now().UTC(),
	}

	err := r.db.Create(&identity).Error
	return identity, err
}

func (r *SqliteRepository) GetIdentity(name string) (Identity, error) {
	var identity Identity
	err := r.db.Where("name_lower = ?", strings.ToLower(name)).First(&identity).Error
	return identity, err
}

func (r *SqliteRepository) IdentityExists(name string) bool {
	var count int64
	r.db.Model(&Identity{}).Where("name_lower = ?", strings.ToLower(name)).Count(&count)
	return count > 0
}

func (r *SqliteRepository) SetCurrentRoom(name string, roomId *string) error {
	res := r.db.Model(&Identity{}).
		Where("name_lower = ?", strings.ToLower(name)).
		Update("current_room", roomId)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *SqliteRepository) ClearRoomPointers(roomId string) error {
	return r.db.Model(&Identity{}).
		Where("current_room = ?", roomId).
		Update("current_room", nil).Error
}

func (r *SqliteRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	room := Room{
		ExternalId:  params.ExternalId,
		Name:        params.Name,
		Description: params.Description,
		Creator:     params.Creator,
		CreatedAt:   time.Now().UTC(),
	}

	err := r.db.Create(&room).Error
	return room, err
}

func (r *SqliteRepository) GetRoom(externalId string) (Room, error) {
	var room Room
	err := r.db.Where("external_id = ?", externalId).First(&room).Error
	return room, err
}

func (r *SqliteRepository) ListRooms() ([]Room, error) {
	var rooms []Room
	err := r.db.Order("created_at").Find(&rooms).Error
	return rooms, err
}

func (r *SqliteRepository) DeleteRoom(externalId string) error {
	res := r.db.Where("external_id = ?", externalId).Delete(&Room{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// AppendMessage inserts a message with the room's next sequence number.
// The sequence increment and the insert commit together.
func (r *SqliteRepository) AppendMessage(params AppendMessageParams) (Message, error) {
	var msg Message
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var room Room
		if err := tx.Where("external_id = ?", params.RoomId).First(&room).Error; err != nil {
			return err
		}

		room.SeqId++
		if err := tx.Model(&Room{}).Where("id = ?", room.Id).
			Update("seq_id", room.SeqId).Error; err != nil {
			return err
		}

		msg = Message{
			Id:        uuid.NewString(),
			RoomId:    params.RoomId,
			SeqId:     room.SeqId,
			Author:    params.Author,
			Content:   params.Content,
			Kind:      params.Kind,
			CreatedAt: params.Timestamp,
		}

		return tx.Create(&msg).Error
	})

	return msg, err
}

func (r *SqliteRepository) ListMessages(roomId string) ([]Message, error) {
	var msgs []Message
	err := r.db.Where("room_id = ?", roomId).Order("seq_id").Find(&msgs).Error
	return msgs, err
}

// LastMessages returns the last n messages in the room, oldest first.
func (r *SqliteRepository) LastMessages(roomId string, n int) ([]Message, error) {
	var msgs []Message
	err := r.db.Where("room_id = ?", roomId).
		Order("seq_id desc").Limit(n).Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

func (r *SqliteRepository) DeleteMessages(roomId string) error {
	return r.db.Where("room_id = ?", roomId).Delete(&Message{}).Error
}
