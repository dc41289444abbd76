package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/normalization"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type UserService interface {
	GetMe(ctx context.Context) (*types.User, error)
	UpdateProfile(ctx context.Context, firstName, lastName string) (*types.User, error)
}

type userService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	avatarService AvatarService
}

func NewUserService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, avatarService AvatarService) UserService {
	return &userService{
		db:            db,
		log:           log.With("service", "UserService"),
		userRepo:      userRepo,
		avatarService: avatarService,
	}
}

func (us *userService) GetMe(ctx context.Context) (*types.User, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("No authenticated user on request")
	}
	users, err := us.userRepo.GetByIDs(ctx, nil, []uuid.UUID{rd.UserID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load user: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("User not found")
	}
	return users[0], nil
}

func (us *userService) UpdateProfile(ctx context.Context, firstName, lastName string) (*types.User, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("No authenticated user on request")
	}

	updates := map[string]interface{}{}
	if v := normalization.TrimInputString(firstName); v != "" {
		updates["first_name"] = v
	}
	if v := normalization.TrimInputString(lastName); v != "" {
		updates["last_name"] = v
	}
	if len(updates) == 0 {
		return us.GetMe(ctx)
	}

	if err := us.userRepo.UpdateFields(ctx, nil, rd.UserID, updates); err != nil {
		return nil, fmt.Errorf("Failed to update profile: %w", err)
	}

	user, err := us.GetMe(ctx)
	if err != nil {
		return nil, err
	}

	// The initials image tracks the name; a failed re-render keeps the old
	// avatar rather than failing the profile update.
	if us.avatarService != nil {
		if err := us.avatarService.RefreshUserAvatar(ctx, user); err != nil {
			us.log.Warn("Failed to refresh avatar", "userID", user.ID, "error", err.Error())
		}
	}
	return user, nil
}
