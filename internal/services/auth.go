package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/types"
	"github.com/docuvault/docuvault-backend/internal/utils"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 30 * 24 * time.Hour
)

type AuthService interface {
	RegisterUser(ctx context.Context, user *types.User) (*types.User, *types.UserToken, error)
	LoginUser(ctx context.Context, email, password string) (*types.User, *types.UserToken, error)
	RefreshToken(ctx context.Context) (*types.UserToken, error)
	LogoutUser(ctx context.Context) error
	SetContextFromToken(ctx context.Context) (context.Context, error)
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	tokenRepo     repos.UserTokenRepo
	avatarService AvatarService
	jwtSecret     []byte
}

func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	tokenRepo repos.UserTokenRepo,
	avatarService AvatarService,
) (AuthService, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("missing env var JWT_SECRET")
	}
	return &authService{
		db:            db,
		log:           log.With("service", "AuthService"),
		userRepo:      userRepo,
		tokenRepo:     tokenRepo,
		avatarService: avatarService,
		jwtSecret:     []byte(secret),
	}, nil
}

func (as *authService) signToken(userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"type": tokenType,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
		"jti":  uuid.New().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(as.jwtSecret)
}

func (as *authService) parseToken(tokenString string) (uuid.UUID, string, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return as.jwtSecret, nil
	})
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("Failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, "", fmt.Errorf("Token is not valid")
	}
	sub, _ := claims["sub"].(string)
	tokenType, _ := claims["type"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("Token sub is not a uuid")
	}
	return userID, tokenType, nil
}

func (as *authService) issueTokenPair(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserToken, error) {
	access, err := as.signToken(userID, "access", accessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("Failed to sign access token: %w", err)
	}
	refresh, err := as.signToken(userID, "refresh", refreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("Failed to sign refresh token: %w", err)
	}
	token := &types.UserToken{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(accessTokenTTL),
	}
	created, err := as.tokenRepo.Create(ctx, tx, []*types.UserToken{token})
	if err != nil {
		return nil, fmt.Errorf("Failed to persist token pair: %w", err)
	}
	return created[0], nil
}

func (as *authService) RegisterUser(ctx context.Context, user *types.User) (*types.User, *types.UserToken, error) {
	utils.NormalizeUserFields(ctx, user)
	if err := utils.InputValidation(ctx, "registration", as.userRepo, as.log, user, "", ""); err != nil {
		return nil, nil, err
	}
	if err := utils.HashPassword(ctx, as.log, user); err != nil {
		return nil, nil, err
	}

	var createdUser *types.User
	var token *types.UserToken

	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := as.userRepo.Create(ctx, tx, []*types.User{user})
		if err != nil {
			return fmt.Errorf("Failed to create user: %w", err)
		}
		createdUser = created[0]

		if err := as.avatarService.CreateAndUploadUserAvatar(ctx, tx, createdUser); err != nil {
			// Avatar failure must not block registration.
			as.log.Warn("Failed to create avatar during registration", "userID", createdUser.ID, "error", err.Error())
		} else {
			if err := as.userRepo.UpdateFields(ctx, tx, createdUser.ID, map[string]interface{}{
				"avatar_bucket_key": createdUser.AvatarBucketKey,
				"avatar_url":        createdUser.AvatarURL,
			}); err != nil {
				return fmt.Errorf("Failed to save avatar fields: %w", err)
			}
		}

		token, err = as.issueTokenPair(ctx, tx, createdUser.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	as.log.Info("User registered", "userID", createdUser.ID, "email", createdUser.Email)
	return createdUser, token, nil
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (*types.User, *types.UserToken, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := utils.InputValidation(ctx, "login", as.userRepo, as.log, nil, email, password); err != nil {
		return nil, nil, err
	}

	users, err := as.userRepo.GetByEmails(ctx, nil, []string{email})
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to look up user: %w", err)
	}
	if len(users) == 0 {
		return nil, nil, fmt.Errorf("Invalid email or password")
	}
	user := users[0]

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, nil, fmt.Errorf("Invalid email or password")
	}

	token, err := as.issueTokenPair(ctx, nil, user.ID)
	if err != nil {
		return nil, nil, err
	}

	as.log.Info("User logged in", "userID", user.ID)
	return user, token, nil
}

// RefreshToken rotates the whole pair: the presented refresh token row is
// deleted and a fresh pair issued, so a replayed refresh token fails.
func (as *authService) RefreshToken(ctx context.Context) (*types.UserToken, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.RefreshToken == "" {
		return nil, fmt.Errorf("No refresh token on request")
	}

	userID, tokenType, err := as.parseToken(rd.RefreshToken)
	if err != nil {
		return nil, err
	}
	if tokenType != "refresh" {
		return nil, fmt.Errorf("Token is not a refresh token")
	}

	existing, err := as.tokenRepo.GetByRefreshTokens(ctx, nil, []string{rd.RefreshToken})
	if err != nil {
		return nil, fmt.Errorf("Failed to look up refresh token: %w", err)
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("Refresh token is not recognized")
	}
	if existing[0].UserID != userID {
		return nil, fmt.Errorf("Refresh token does not match user")
	}

	var newToken *types.UserToken
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := as.tokenRepo.FullDeleteByTokens(ctx, tx, existing); err != nil {
			return fmt.Errorf("Failed to rotate token pair: %w", err)
		}
		newToken, err = as.issueTokenPair(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newToken, nil
}

func (as *authService) LogoutUser(ctx context.Context) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TokenString == "" {
		return fmt.Errorf("No access token on request")
	}
	tokens, err := as.tokenRepo.GetByAccessTokens(ctx, nil, []string{rd.TokenString})
	if err != nil {
		return fmt.Errorf("Failed to look up access token: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	if err := as.tokenRepo.FullDeleteByTokens(ctx, nil, tokens); err != nil {
		return fmt.Errorf("Failed to delete token pair: %w", err)
	}
	as.log.Info("User logged out", "userID", tokens[0].UserID)
	return nil
}

// SetContextFromToken validates the bearer token on the request and stamps
// the resolved user id into the request data.
func (as *authService) SetContextFromToken(ctx context.Context) (context.Context, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TokenString == "" {
		return ctx, fmt.Errorf("No access token on request")
	}

	userID, tokenType, err := as.parseToken(rd.TokenString)
	if err != nil {
		return ctx, err
	}
	if tokenType != "access" {
		return ctx, fmt.Errorf("Token is not an access token")
	}

	tokens, err := as.tokenRepo.GetByAccessTokens(ctx, nil, []string{rd.TokenString})
	if err != nil {
		return ctx, fmt.Errorf("Failed to look up access token: %w", err)
	}
	if len(tokens) == 0 {
		return ctx, fmt.Errorf("Access token is not recognized")
	}
	if tokens[0].UserID != userID {
		return ctx, fmt.Errorf("Access token does not match user")
	}

	rd.UserID = userID
	return requestdata.WithRequestData(ctx, rd), nil
}
