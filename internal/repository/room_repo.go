package repository

import (
	"context"
	"errors"
	"time"

	"pgstay/internal/domain"

	"gorm.io/gorm"
)

// RoomRepository owns the available_beds counter. Every change is a single conditional
// UPDATE so concurrent callers cannot both take the last bed.
type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) WithTx(tx *gorm.DB) *RoomRepository {
	return &RoomRepository{db: tx}
}

func (r *RoomRepository) GetByID(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// TryDecrement takes one bed. It returns domain.ErrNoCapacity when the counter is zero.
func (r *RoomRepository) TryDecrement(ctx context.Context, roomID string) (int, error) {
	res := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ? AND available_beds > 0", roomID).
		UpdateColumns(map[string]interface{}{
			"available_beds": gorm.Expr("available_beds - 1"),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, roomID); err != nil {
			return 0, err
		}
		return 0, domain.ErrNoCapacity
	}
	return r.AvailableBeds(ctx, roomID)
}

// Increment returns one bed, never exceeding total_beds. restored is false when the room
// was already full.
func (r *RoomRepository) Increment(ctx context.Context, roomID string) (count int, restored bool, err error) {
	res := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ? AND available_beds < total_beds", roomID).
		UpdateColumns(map[string]interface{}{
			"available_beds": gorm.Expr("available_beds + 1"),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, false, res.Error
	}
	count, err = r.AvailableBeds(ctx, roomID)
	if err != nil {
		return 0, false, err
	}
	return count, res.RowsAffected > 0, nil
}

func (r *RoomRepository) AvailableBeds(ctx context.Context, roomID string) (int, error) {
	room, err := r.GetByID(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return room.AvailableBeds, nil
}
