package users

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/peerloop/peerloop/model"
	"gorm.io/gorm"
)

type UserRepository interface {
	FirstByID(ctx context.Context, id uint) (*model.User, error)
	FirstByEmail(ctx context.Context, email string) (*model.User, error)
	FirstByUsername(ctx context.Context, username string) (*model.User, error)
	FirstByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Updates(ctx context.Context, userID uint, columns map[string]interface{}) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) first(ctx context.Context, query string, args ...interface{}) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FirstByID(ctx context.Context, id uint) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *userRepository) FirstByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *userRepository) FirstByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *userRepository) FirstByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error) {
	return r.first(ctx, "email = ? OR username = ?", email, username)
}

// Create maps duplicate-key violations on the unique email/username indexes
// to the corresponding domain errors so callers never see a raw driver error
// for a registration race.
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	duplicate := errors.Is(err, gorm.ErrDuplicatedKey) ||
		(errors.As(err, &mysqlErr) && mysqlErr.Number == 1062) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
	if duplicate {
		if strings.Contains(err.Error(), "username") {
			return ErrUsernameTaken
		}
		return ErrEmailRegistered
	}
	return err
}

func (r *userRepository) Updates(ctx context.Context, userID uint, columns map[string]interface{}) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(columns)
	return ret.RowsAffected, ret.Error
}
