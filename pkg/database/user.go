// pkg/database/user.go
package database

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ScreenRadar/pkg/model"
)

type UserDB struct {
	db *gorm.DB
}

// NewUser registration data
type NewUser struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// FindByCredentials returns nil, nil when the username is unknown or the
// password does not match.
func (u *UserDB) FindByCredentials(ctx context.Context, username, password string) (*model.User, error) {
	var user model.User
	err := u.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("find user by credentials", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return &user, nil
}

// Authenticate is FindByCredentials with a miss reported as ErrAuthentication.
func (u *UserDB) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := u.FindByCredentials(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrAuthentication
	}
	return user, nil
}

// FindByUsernameOrEmail returns the first user matching either field, or nil.
func (u *UserDB) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	var user model.User
	err := u.db.WithContext(ctx).
		Where("username = ? OR email = ?", username, email).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("find user by username or email", err)
	}
	return &user, nil
}

// Add registers a user. The password is stored as a bcrypt hash.
func (u *UserDB) Add(ctx context.Context, data NewUser) (*model.User, error) {
	data.Username = strings.TrimSpace(data.Username)
	data.Email = strings.TrimSpace(data.Email)

	existing, err := u.FindByUsernameOrEmail(ctx, data.Username, data.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(data.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     data.Username,
		Email:        data.Email,
		PasswordHash: string(hash),
	}
	if err := u.db.WithContext(ctx).Create(user).Error; err != nil {
		// lost the race against a concurrent registration
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateUser
		}
		return nil, storageErr("add user", err)
	}
	return user, nil
}

func (u *UserDB) GetByID(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	err := u.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get user", err)
	}
	return &user, nil
}

// Delete removes the user together with every watchlist it owns. Deleting an
// unknown id is not an error.
func (u *UserDB) Delete(ctx context.Context, userID string) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.Watchlist{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.User{}, "id = ?", userID).Error
	})
	if err != nil {
		return storageErr("delete user", err)
	}
	return nil
}
