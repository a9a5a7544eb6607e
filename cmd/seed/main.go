package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"graphrag-gateway/internal/config"
	"graphrag-gateway/internal/entity"
	"graphrag-gateway/internal/repository/implementation"
	"graphrag-gateway/internal/repository/specification"
	"graphrag-gateway/pkg/database"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	username := flag.String("username", os.Getenv("SEED_USERNAME"), "login name of the user to create")
	password := flag.String("password", os.Getenv("SEED_PASSWORD"), "plain text password, hashed with bcrypt before storing")
	displayName := flag.String("display-name", "", "optional display name")
	department := flag.String("department", "", "optional department")
	role := flag.String("role", string(entity.UserRoleUser), "user or admin")
	flag.Parse()

	if *username == "" || *password == "" {
		log.Fatal("Error: -username and -password (or SEED_USERNAME and SEED_PASSWORD) are required")
	}
	if *role != string(entity.UserRoleUser) && *role != string(entity.UserRoleAdmin) {
		log.Fatalf("Error: unknown role %q", *role)
	}

	cfg := config.Load()
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}
	users := implementation.NewUserRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	existing, err := users.FindOne(ctx, specification.ByUsername{Username: *username})
	if err != nil {
		log.Fatalf("Error: lookup failed: %v", err)
	}
	if existing != nil {
		log.Printf("User %q already exists (%s), nothing to do", *username, existing.Id)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Error: hashing password: %v", err)
	}

	user := &entity.User{
		Id:           uuid.New(),
		Username:     *username,
		PasswordHash: string(hash),
		DisplayName:  optional(*displayName),
		Role:         entity.UserRole(*role),
		Department:   optional(*department),
		IsActive:     true,
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("Error: creating user: %v", err)
	}
	log.Printf("Created %s user %q (%s)", user.Role, user.Username, user.Id)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
