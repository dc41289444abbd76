package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/types"
)

type fakeAvatar struct {
	refreshed []uuid.UUID
}

func (f *fakeAvatar) CreateAndUploadUserAvatar(ctx context.Context, tx *gorm.DB, user *types.User) error {
	return nil
}
func (f *fakeAvatar) RefreshUserAvatar(ctx context.Context, user *types.User) error {
	f.refreshed = append(f.refreshed, user.ID)
	return nil
}
func (f *fakeAvatar) GenerateUserAvatar(user *types.User) (bytes.Buffer, error) {
	return bytes.Buffer{}, nil
}

var _ AvatarService = (*fakeAvatar)(nil)

func newUserTestDB(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.Exec(`CREATE TABLE "user" (
		id TEXT PRIMARY KEY, email TEXT UNIQUE, password TEXT,
		first_name TEXT, last_name TEXT, avatar_bucket_key TEXT, avatar_url TEXT,
		created_at DATETIME, updated_at DATETIME)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return gdb, log
}

func TestUpdateProfileRefreshesAvatar(t *testing.T) {
	gdb, log := newUserTestDB(t)
	userRepo := repos.NewUserRepo(gdb, log)
	avatar := &fakeAvatar{}
	us := NewUserService(gdb, log, userRepo, avatar)

	u := &types.User{
		ID:        uuid.New(),
		Email:     "grace@example.com",
		Password:  "hashed",
		FirstName: "Grace",
		LastName:  "Hopper",
	}
	if _, err := userRepo.Create(context.Background(), nil, []*types.User{u}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	ctx := scopedCtx(uuid.New(), u.ID)

	got, err := us.UpdateProfile(ctx, "Amazing", "")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.FirstName != "Amazing" || got.LastName != "Hopper" {
		t.Errorf("profile = %s %s", got.FirstName, got.LastName)
	}
	if len(avatar.refreshed) != 1 || avatar.refreshed[0] != u.ID {
		t.Errorf("avatar refreshes = %v", avatar.refreshed)
	}
}

func TestUpdateProfileNoChangesSkipsAvatar(t *testing.T) {
	gdb, log := newUserTestDB(t)
	userRepo := repos.NewUserRepo(gdb, log)
	avatar := &fakeAvatar{}
	us := NewUserService(gdb, log, userRepo, avatar)

	u := &types.User{
		ID:        uuid.New(),
		Email:     "grace@example.com",
		Password:  "hashed",
		FirstName: "Grace",
		LastName:  "Hopper",
	}
	if _, err := userRepo.Create(context.Background(), nil, []*types.User{u}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	got, err := us.UpdateProfile(scopedCtx(uuid.New(), u.ID), "  ", "")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.FirstName != "Grace" {
		t.Errorf("first name = %q", got.FirstName)
	}
	if len(avatar.refreshed) != 0 {
		t.Errorf("avatar refreshed on no-op update: %v", avatar.refreshed)
	}
}
