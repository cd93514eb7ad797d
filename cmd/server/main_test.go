package main

import (
	"context"
	"path/filepath"
	"testing"

	"barbershop/backend/internal/config"
	filestore "barbershop/backend/internal/store/file"
	"barbershop/backend/internal/store/memory"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ShopPassword: "Barber#2024"})
	if err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	err = validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ShopPassword: "password"})
	if err == nil {
		t.Fatalf("expected common password to be rejected")
	}
	err = validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ShopPassword: "Barber#2024", EmployeePassword: "aaaaaaaa"})
	if err == nil {
		t.Fatalf("expected repeated-character employee password to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ShopPassword: "Barber#2024"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryFallsBackToFileAndMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), config.Config{DataFile: ":memory:"})
	if err != nil || closeFn != nil {
		t.Fatalf("unexpected result: %v", err)
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}

	repo, _, err = openRepository(context.Background(), config.Config{DataFile: filepath.Join(t.TempDir(), "db.json")})
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	if _, ok := repo.(*filestore.Store); !ok {
		t.Fatalf("expected file store, got %T", repo)
	}
}
