package publish

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account not found")

// Account is a connected publishing account. Tokens are stored sealed.
type Account struct {
	ID           string `gorm:"primaryKey"`
	Provider     string
	Name         string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountInfo is the part of an Account that is safe to show.
type AccountInfo struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	Name        string    `json:"name"`
	Expiry      time.Time `json:"expiry"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func (a Account) Info() AccountInfo {
	return AccountInfo{
		ID:          a.ID,
		Provider:    a.Provider,
		Name:        a.Name,
		Expiry:      a.Expiry,
		ConnectedAt: a.CreatedAt,
	}
}

type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Migrate() error {
	return s.db.AutoMigrate(&Account{})
}

func (s *AccountStore) Save(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = uuid.Must(uuid.NewV7()).String()
	}
	return s.db.WithContext(ctx).Save(a).Error
}

func (s *AccountStore) Get(ctx context.Context, id string) (*Account, error) {
	var a Account
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AccountStore) List(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (s *AccountStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Account{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
