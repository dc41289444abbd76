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

type TenantService interface {
	CreateTenant(ctx context.Context, name string) (*types.Tenant, error)
	ListMyTenants(ctx context.Context) ([]*types.Tenant, error)
	GetTenant(ctx context.Context, tenantID uuid.UUID) (*types.Tenant, error)
	RenameTenant(ctx context.Context, tenantID uuid.UUID, name string) (*types.Tenant, error)

	AddMember(ctx context.Context, tenantID uuid.UUID, email, role string) (*types.TenantMembership, error)
	ListMembers(ctx context.Context, tenantID uuid.UUID) ([]*types.TenantMembership, error)
	ChangeMemberRole(ctx context.Context, tenantID, userID uuid.UUID, role string) (*types.TenantMembership, error)
	RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error
}

type tenantService struct {
	db             *gorm.DB
	log            *logger.Logger
	tenantRepo     repos.TenantRepo
	membershipRepo repos.MembershipRepo
	userRepo       repos.UserRepo
}

func NewTenantService(
	db *gorm.DB,
	log *logger.Logger,
	tenantRepo repos.TenantRepo,
	membershipRepo repos.MembershipRepo,
	userRepo repos.UserRepo,
) TenantService {
	return &tenantService{
		db:             db,
		log:            log.With("service", "TenantService"),
		tenantRepo:     tenantRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
	}
}

func validTenantRole(role string) bool {
	return role == types.TenantRoleOwner || role == types.TenantRoleMember
}

// CreateTenant creates the tenant and an owner membership for the caller in
// one transaction. The slug is derived from the name and uniquified with a
// numeric suffix.
func (ts *tenantService) CreateTenant(ctx context.Context, name string) (*types.Tenant, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("No authenticated user on request")
	}

	name = normalization.TrimInputString(name)
	if name == "" {
		return nil, fmt.Errorf("A tenant name is required")
	}

	baseSlug := normalization.ParseSlug(name)
	if baseSlug == "" {
		return nil, fmt.Errorf("Tenant name produces an empty slug")
	}

	var tenant *types.Tenant
	err := ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug := baseSlug
		for i := 2; ; i++ {
			exists, err := ts.tenantRepo.SlugExists(ctx, tx, slug)
			if err != nil {
				return fmt.Errorf("Failed to check slug: %w", err)
			}
			if !exists {
				break
			}
			slug = fmt.Sprintf("%s-%d", baseSlug, i)
		}

		created, err := ts.tenantRepo.Create(ctx, tx, []*types.Tenant{{
			Name:      name,
			Slug:      slug,
			CreatedBy: rd.UserID,
		}})
		if err != nil {
			return fmt.Errorf("Failed to create tenant: %w", err)
		}
		tenant = created[0]

		_, err = ts.membershipRepo.Create(ctx, tx, []*types.TenantMembership{{
			TenantID: tenant.ID,
			UserID:   rd.UserID,
			Role:     types.TenantRoleOwner,
		}})
		if err != nil {
			return fmt.Errorf("Failed to create owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ts.log.Info("Tenant created", "tenantID", tenant.ID, "slug", tenant.Slug, "createdBy", rd.UserID)
	return tenant, nil
}

func (ts *tenantService) ListMyTenants(ctx context.Context) ([]*types.Tenant, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("No authenticated user on request")
	}
	return ts.tenantRepo.ListByUserID(ctx, nil, rd.UserID)
}

func (ts *tenantService) GetTenant(ctx context.Context, tenantID uuid.UUID) (*types.Tenant, error) {
	tenants, err := ts.tenantRepo.GetByIDs(ctx, nil, []uuid.UUID{tenantID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load tenant: %w", err)
	}
	if len(tenants) == 0 {
		return nil, fmt.Errorf("Tenant not found")
	}
	return tenants[0], nil
}

func (ts *tenantService) RenameTenant(ctx context.Context, tenantID uuid.UUID, name string) (*types.Tenant, error) {
	name = normalization.TrimInputString(name)
	if name == "" {
		return nil, fmt.Errorf("A tenant name is required")
	}
	if err := ts.tenantRepo.UpdateFields(ctx, nil, tenantID, map[string]interface{}{"name": name}); err != nil {
		return nil, fmt.Errorf("Failed to rename tenant: %w", err)
	}
	return ts.GetTenant(ctx, tenantID)
}

func (ts *tenantService) AddMember(ctx context.Context, tenantID uuid.UUID, email, role string) (*types.TenantMembership, error) {
	email = normalization.ParseInputString(email)
	if email == "" {
		return nil, fmt.Errorf("An email is required")
	}
	if role == "" {
		role = types.TenantRoleMember
	}
	if !validTenantRole(role) {
		return nil, fmt.Errorf("Role must be owner or member")
	}

	users, err := ts.userRepo.GetByEmails(ctx, nil, []string{email})
	if err != nil {
		return nil, fmt.Errorf("Failed to look up user: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("No user with that email")
	}
	user := users[0]

	existing, err := ts.membershipRepo.GetByTenantAndUser(ctx, nil, tenantID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("Failed to check membership: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("User is already a member of this tenant")
	}

	created, err := ts.membershipRepo.Create(ctx, nil, []*types.TenantMembership{{
		TenantID: tenantID,
		UserID:   user.ID,
		Role:     role,
	}})
	if err != nil {
		return nil, fmt.Errorf("Failed to add member: %w", err)
	}

	ts.log.Info("Member added", "tenantID", tenantID, "userID", user.ID, "role", role)
	return created[0], nil
}

func (ts *tenantService) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]*types.TenantMembership, error) {
	return ts.membershipRepo.ListByTenantID(ctx, nil, tenantID)
}

// ChangeMemberRole enforces the last-owner rule inside a transaction:
// demoting the only owner would orphan the tenant.
func (ts *tenantService) ChangeMemberRole(ctx context.Context, tenantID, userID uuid.UUID, role string) (*types.TenantMembership, error) {
	if !validTenantRole(role) {
		return nil, fmt.Errorf("Role must be owner or member")
	}

	var updated *types.TenantMembership
	err := ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		membership, err := ts.membershipRepo.GetByTenantAndUser(ctx, tx, tenantID, userID)
		if err != nil {
			return fmt.Errorf("Failed to load membership: %w", err)
		}
		if membership == nil {
			return fmt.Errorf("User is not a member of this tenant")
		}
		if membership.Role == role {
			updated = membership
			return nil
		}

		if membership.Role == types.TenantRoleOwner && role != types.TenantRoleOwner {
			owners, err := ts.membershipRepo.CountByTenantAndRole(ctx, tx, tenantID, types.TenantRoleOwner)
			if err != nil {
				return fmt.Errorf("Failed to count owners: %w", err)
			}
			if owners <= 1 {
				return fmt.Errorf("Cannot demote the last owner of a tenant")
			}
		}

		if err := ts.membershipRepo.UpdateFields(ctx, tx, membership.ID, map[string]interface{}{"role": role}); err != nil {
			return fmt.Errorf("Failed to change role: %w", err)
		}
		membership.Role = role
		updated = membership
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (ts *tenantService) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	return ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		membership, err := ts.membershipRepo.GetByTenantAndUser(ctx, tx, tenantID, userID)
		if err != nil {
			return fmt.Errorf("Failed to load membership: %w", err)
		}
		if membership == nil {
			return fmt.Errorf("User is not a member of this tenant")
		}

		if membership.Role == types.TenantRoleOwner {
			owners, err := ts.membershipRepo.CountByTenantAndRole(ctx, tx, tenantID, types.TenantRoleOwner)
			if err != nil {
				return fmt.Errorf("Failed to count owners: %w", err)
			}
			if owners <= 1 {
				return fmt.Errorf("Cannot remove the last owner of a tenant")
			}
		}

		if err := ts.membershipRepo.FullDeleteByIDs(ctx, tx, []uuid.UUID{membership.ID}); err != nil {
			return fmt.Errorf("Failed to remove member: %w", err)
		}
		ts.log.Info("Member removed", "tenantID", tenantID, "userID", userID)
		return nil
	})
}
