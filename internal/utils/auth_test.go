package utils

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/types"
)

func newUserRepo(t *testing.T) (repos.UserRepo, *logger.Logger) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ddl := `CREATE TABLE "user" (
		id TEXT PRIMARY KEY, email TEXT UNIQUE, password TEXT,
		first_name TEXT, last_name TEXT, avatar_bucket_key TEXT, avatar_url TEXT,
		created_at DATETIME, updated_at DATETIME)`
	if err := gdb.Exec(ddl).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return repos.NewUserRepo(gdb, log), log
}

func validUser() *types.User {
	return &types.User{
		Email:     "jane@example.com",
		Password:  "supersecret",
		FirstName: "Jane",
		LastName:  "Doe",
	}
}

func TestInputValidationRegistration(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.User)
		wantErr string
	}{
		{"valid user passes", func(u *types.User) {}, ""},
		{"missing email", func(u *types.User) { u.Email = "" }, "email is required"},
		{"malformed email", func(u *types.User) { u.Email = "not-an-email" }, "not valid"},
		{"missing password", func(u *types.User) { u.Password = "" }, "password is required"},
		{"short password", func(u *types.User) { u.Password = "short" }, "at least 8"},
		{"missing first name", func(u *types.User) { u.FirstName = "" }, "first name"},
		{"missing last name", func(u *types.User) { u.LastName = "" }, "last name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userRepo, log := newUserRepo(t)
			user := validUser()
			tt.mutate(user)
			err := InputValidation(context.Background(), "registration", userRepo, log, user, "", "")
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("InputValidation: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(strings.ToLower(err.Error()), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInputValidationDuplicateEmail(t *testing.T) {
	userRepo, log := newUserRepo(t)
	existing := validUser()
	existing.ID = uuid.New()
	if _, err := userRepo.Create(context.Background(), nil, []*types.User{existing}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	err := InputValidation(context.Background(), "registration", userRepo, log, validUser(), "", "")
	if err == nil || !strings.Contains(err.Error(), "already in use") {
		t.Errorf("err = %v, want duplicate email rejection", err)
	}
}

func TestInputValidationLogin(t *testing.T) {
	userRepo, log := newUserRepo(t)

	if err := InputValidation(context.Background(), "login", userRepo, log, nil, "jane@example.com", "pw"); err != nil {
		t.Errorf("valid login input rejected: %v", err)
	}
	if err := InputValidation(context.Background(), "login", userRepo, log, nil, "", "pw"); err == nil {
		t.Error("missing email accepted")
	}
	if err := InputValidation(context.Background(), "login", userRepo, log, nil, "jane@example.com", ""); err == nil {
		t.Error("missing password accepted")
	}
	if err := InputValidation(context.Background(), "  ", userRepo, log, nil, "", ""); err == nil {
		t.Error("blank validation target accepted")
	}
}

func TestHashPassword(t *testing.T) {
	_, log := newUserRepo(t)
	user := validUser()
	plain := user.Password

	if err := HashPassword(context.Background(), log, user); err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if user.Password == plain {
		t.Fatal("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(plain)); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}

func TestNormalizeUserFields(t *testing.T) {
	user := &types.User{
		Email:     "  Jane@Example.COM ",
		FirstName: "  Jane ",
		LastName:  " Doe  ",
	}
	NormalizeUserFields(context.Background(), user)
	if user.Email != "jane@example.com" {
		t.Errorf("email = %q", user.Email)
	}
	if user.FirstName != "Jane" || user.LastName != "Doe" {
		t.Errorf("names = %q %q", user.FirstName, user.LastName)
	}
}
