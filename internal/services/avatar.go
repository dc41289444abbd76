package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/types"
)

const (
	avatarRenderSize = 512
	avatarFinalSize  = 256
)

var avatarPalette = []color.NRGBA{
	{R: 0x1F, G: 0x77, B: 0xB4, A: 0xFF},
	{R: 0xFF, G: 0x7F, B: 0x0E, A: 0xFF},
	{R: 0x2C, G: 0xA0, B: 0x2C, A: 0xFF},
	{R: 0xD6, G: 0x27, B: 0x28, A: 0xFF},
	{R: 0x94, G: 0x67, B: 0xBD, A: 0xFF},
	{R: 0x8C, G: 0x56, B: 0x4B, A: 0xFF},
	{R: 0xE3, G: 0x77, B: 0xC2, A: 0xFF},
	{R: 0x17, G: 0xBE, B: 0xCF, A: 0xFF},
}

type AvatarService interface {
	CreateAndUploadUserAvatar(ctx context.Context, tx *gorm.DB, user *types.User) error
	RefreshUserAvatar(ctx context.Context, user *types.User) error
	GenerateUserAvatar(user *types.User) (bytes.Buffer, error)
}

type avatarService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	bucketService BucketService
	fontFace      font.Face
}

func NewAvatarService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, bucketService BucketService) (AvatarService, error) {
	serviceLog := log.With("service", "AvatarService")

	var face font.Face
	fontPath := strings.TrimSpace(os.Getenv("AVATAR_FONT"))
	if fontPath != "" {
		loaded, err := loadFontFace(fontPath, 206)
		if err != nil {
			return nil, fmt.Errorf("could not load avatar font: %w", err)
		}
		face = loaded
	} else {
		serviceLog.Warn("Env var AVATAR_FONT is empty, falling back to builtin face")
		face = basicfont.Face7x13
	}

	return &avatarService{
		db:            db,
		log:           serviceLog,
		userRepo:      userRepo,
		bucketService: bucketService,
		fontFace:      face,
	}, nil
}

func loadFontFace(path string, points float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, err
	}
	return truetype.NewFace(f, &truetype.Options{Size: points}), nil
}

func (as *avatarService) CreateAndUploadUserAvatar(ctx context.Context, tx *gorm.DB, user *types.User) error {
	buf, err := as.GenerateUserAvatar(user)
	if err != nil {
		return fmt.Errorf("Failed to generate avatar: %w", err)
	}
	key := fmt.Sprintf("avatars/%s.png", user.ID.String())
	if err := as.bucketService.UploadFile(ctx, key, &buf); err != nil {
		return fmt.Errorf("Failed to upload avatar: %w", err)
	}
	user.AvatarBucketKey = key
	user.AvatarURL = as.bucketService.GetPublicURL(key)
	return nil
}

// RefreshUserAvatar re-renders the initials image in place after a profile
// change. A user somehow missing an avatar gets one at the standard key.
func (as *avatarService) RefreshUserAvatar(ctx context.Context, user *types.User) error {
	if user == nil {
		return fmt.Errorf("nil user")
	}
	if user.AvatarBucketKey == "" {
		if err := as.CreateAndUploadUserAvatar(ctx, nil, user); err != nil {
			return err
		}
		return as.userRepo.UpdateFields(ctx, nil, user.ID, map[string]interface{}{
			"avatar_bucket_key": user.AvatarBucketKey,
			"avatar_url":        user.AvatarURL,
		})
	}
	buf, err := as.GenerateUserAvatar(user)
	if err != nil {
		return fmt.Errorf("Failed to generate avatar: %w", err)
	}
	if err := as.bucketService.ReplaceFile(ctx, user.AvatarBucketKey, &buf); err != nil {
		return fmt.Errorf("Failed to replace avatar: %w", err)
	}
	return nil
}

// GenerateUserAvatar renders the user's initials on a background color
// chosen deterministically from the email hash, then downscales for storage.
func (as *avatarService) GenerateUserAvatar(user *types.User) (bytes.Buffer, error) {
	var out bytes.Buffer
	if user == nil {
		return out, fmt.Errorf("nil user")
	}

	sum := sha256.Sum256([]byte(strings.ToLower(user.Email)))
	bg := avatarPalette[int(sum[0])%len(avatarPalette)]

	dc := gg.NewContext(avatarRenderSize, avatarRenderSize)
	dc.SetColor(bg)
	dc.Clear()

	initials := userInitials(user)
	dc.SetFontFace(as.fontFace)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(initials, float64(avatarRenderSize)/2, float64(avatarRenderSize)/2, 0.5, 0.5)

	small := image.NewNRGBA(image.Rect(0, 0, avatarFinalSize, avatarFinalSize))
	draw.CatmullRom.Scale(small, small.Bounds(), dc.Image(), dc.Image().Bounds(), draw.Over, nil)

	if err := png.Encode(&out, small); err != nil {
		return out, fmt.Errorf("Failed to encode avatar png: %w", err)
	}
	return out, nil
}

func userInitials(user *types.User) string {
	first := strings.TrimSpace(user.FirstName)
	last := strings.TrimSpace(user.LastName)
	var b strings.Builder
	if first != "" {
		b.WriteString(strings.ToUpper(first[:1]))
	}
	if last != "" {
		b.WriteString(strings.ToUpper(last[:1]))
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}
