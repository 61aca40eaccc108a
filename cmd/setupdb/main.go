package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"agency-platform/internal/app"
	"agency-platform/internal/config"
	"agency-platform/internal/domain/user"
	infrapg "agency-platform/internal/infra/postgres"
	"agency-platform/internal/rbac"
	"agency-platform/internal/rbac/presets"
	"agency-platform/internal/repository/postgres"
	"agency-platform/pkg/password"
)

const (
	setupTimeout = time.Minute

	envOperatorEmail    = "SETUP_OPERATOR_EMAIL"
	envOperatorPassword = "SETUP_OPERATOR_PASSWORD"
)

var tables = []string{"clients", "agencies", "users", "audit_events"}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	fmt.Println("=== Setting Up Database ===")
	fmt.Println()

	pool, err := infrapg.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	db := postgres.New(pool)
	defer db.Close()

	fmt.Println("Connected to database")
	fmt.Println("Executing schema...")
	if err := db.ApplySchema(ctx); err != nil {
		log.Fatalf("Failed to execute schema: %v", err)
	}
	fmt.Println("Schema executed successfully")
	fmt.Println()

	fmt.Println("=== Verifying Tables ===")
	for _, table := range tables {
		var exists bool
		query := `SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)`
		if err := db.SQL.QueryRowContext(ctx, query, table).Scan(&exists); err != nil {
			fmt.Printf("Error checking table '%s': %v\n", table, err)
			continue
		}

		if exists {
			fmt.Printf("Table '%s' present\n", table)
		} else {
			fmt.Printf("Table '%s' NOT created\n", table)
		}
	}

	fmt.Println()
	if email := os.Getenv(envOperatorEmail); email != "" {
		provisionOperator(ctx, db, cfg, user.CreateUserInput{
			Email:    email,
			Password: os.Getenv(envOperatorPassword),
		})
		fmt.Println()
	}

	fmt.Println("=== Database Setup Complete ===")
}

func provisionOperator(ctx context.Context, db *postgres.DB, cfg *config.Config, in user.CreateUserInput) {
	fmt.Println("=== Provisioning Operator ===")
	engine, err := rbac.New(presets.Agency(), nil)
	if err != nil {
		log.Fatalf("Failed to build permission model: %v", err)
	}
	hasher, err := password.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatalf("Failed to create password hasher: %v", err)
	}

	users := postgres.NewUserRepository(db, engine)
	u, created, err := app.ProvisionOperator(ctx, users, engine, hasher, in)
	if err != nil {
		log.Fatalf("Failed to provision operator: %v", err)
	}
	if created {
		fmt.Printf("Operator '%s' created with %d permissions\n", u.Email, u.Permissions.Len())
	} else {
		fmt.Printf("Operator '%s' already exists, left unchanged\n", u.Email)
	}
}
