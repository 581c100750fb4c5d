package food

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateFood(ctx context.Context, f *Food) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *Repo) GetFood(ctx context.Context, userID, id uint64) (*Food, error) {
	var f Food
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repo) ListFoods(ctx context.Context, userID uint64) ([]Food, error) {
	var foods []Food
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name ASC").
		Find(&foods).Error; err != nil {
		return nil, err
	}
	return foods, nil
}

// UpdateFoodFields applies a partial-field merge; only supplied columns change.
func (r *Repo) UpdateFoodFields(ctx context.Context, userID, id uint64, fields map[string]any) (*Food, error) {
	if len(fields) > 0 {
		res := r.db.WithContext(ctx).Model(&Food{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return r.GetFood(ctx, userID, id)
}

func (r *Repo) DeleteFood(ctx context.Context, userID, id uint64) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&Food{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) CreateEntry(ctx context.Context, e *Entry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *Repo) GetEntry(ctx context.Context, userID, id uint64) (*Entry, error) {
	var e Entry
	if err := r.db.WithContext(ctx).
		Preload("Food").
		Where("id = ? AND user_id = ?", id, userID).
		First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repo) ListEntries(ctx context.Context, userID uint64, day string) ([]Entry, error) {
	q := r.db.WithContext(ctx).
		Preload("Food").
		Where("user_id = ?", userID).
		Order("created_at ASC")
	if day != "" {
		q = q.Where("day = ?", day)
	}
	var entries []Entry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repo) UpdateEntryAmount(ctx context.Context, userID, id uint64, amount float64) error {
	res := r.db.WithContext(ctx).Model(&Entry{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("amount", amount)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) DeleteEntry(ctx context.Context, userID, id uint64) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&Entry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
