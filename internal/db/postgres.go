package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/types"
	"github.com/docuvault/docuvault-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	dsn string
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	log.Info("Loading environment variables...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "docuvault", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("Failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, dsn: dsn, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.Tenant{},
		&types.TenantMembership{},
		&types.Folder{},
		&types.BlobInventory{},
		&types.ExtractionJob{},
		&types.DocumentChunk{},
		&types.QAPair{},
		&types.AgentSession{},
		&types.AgentMessage{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring constraints for postgres tables...")
	statements := []string{
		`ALTER TABLE "user_token"
		 DROP CONSTRAINT IF EXISTS "fk_user_token_user_id",
		 ADD CONSTRAINT "fk_user_token_user_id"
		 FOREIGN KEY ("user_id") REFERENCES "user"("id") ON DELETE CASCADE`,

		`ALTER TABLE "folder"
		 DROP CONSTRAINT IF EXISTS "fk_folder_parent_id",
		 ADD CONSTRAINT "fk_folder_parent_id"
		 FOREIGN KEY ("parent_id") REFERENCES "folder"("id") ON DELETE CASCADE`,

		// Sibling folder names are unique within a parent. NULL parents need
		// their own index because NULL never equals NULL.
		`CREATE UNIQUE INDEX IF NOT EXISTS "uq_folder_sibling_name"
		 ON "folder" ("tenant_id", "parent_id", "name") WHERE "parent_id" IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS "uq_folder_root_name"
		 ON "folder" ("tenant_id", "name") WHERE "parent_id" IS NULL`,

		// One active extraction job per blob. This is what keeps the ledger
		// and blob_inventory consistent under concurrent triggering: the
		// second concurrent insert loses at the database, not at an advisory
		// status check.
		`CREATE UNIQUE INDEX IF NOT EXISTS "uq_extraction_job_active_blob"
		 ON "extraction_job" ("blob_id") WHERE "status" IN ('pending', 'processing')`,
	}
	for _, stmt := range statements {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("Failed to apply constraint: %w", err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}

// DSN is handed to the pgx notify listener, which needs its own dedicated
// connection outside the gorm pool.
func (s *PostgresService) DSN() string {
	return s.dsn
}
