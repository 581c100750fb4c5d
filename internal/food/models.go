package food

import "time"

// Food is a per-user catalog record. Nutrition values are per 100g.
type Food struct {
	ID            uint64   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint64   `gorm:"index;not null" json:"-"`
	Name          string   `gorm:"type:varchar(255);not null" json:"name"`
	Calories      float64  `gorm:"not null" json:"calories"`
	Protein       float64  `gorm:"not null" json:"protein"`
	Carbs         float64  `gorm:"not null" json:"carbs"`
	Fat           float64  `gorm:"not null" json:"fat"`
	DefaultAmount *float64 `json:"defaultAmount,omitempty"` // grams

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Food) TableName() string { return "foods" }

// Entry is one logged consumption: a food reference plus grams on a day.
type Entry struct {
	ID     uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint64  `gorm:"index:idx_food_entry_user_day,priority:1;not null" json:"-"`
	FoodID uint64  `gorm:"index;not null" json:"foodId"`
	Food   Food    `gorm:"foreignKey:FoodID" json:"food"`
	Amount float64 `gorm:"not null" json:"amount"` // grams
	Day    string  `gorm:"type:varchar(10);index:idx_food_entry_user_day,priority:2;not null" json:"day"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Entry) TableName() string { return "food_entries" }
