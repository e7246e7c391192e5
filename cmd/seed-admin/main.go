// seed-admin creates the bootstrap admin user, or resets its password and
// admin flag when it already exists.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	ADMIN_PASSWORD=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	username := envOr("ADMIN_USERNAME", "erpAdmin")
	name := envOr("ADMIN_NAME", "ERP Admin")
	password := os.Getenv("ADMIN_PASSWORD")
	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "ADMIN_PASSWORD must be set and at least 8 characters.")
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized. Set DB_* env vars.")
		os.Exit(1)
	}
	if os.Getenv("SKIP_MIGRATIONS") != "true" {
		models.MigrateTable()
	}

	ctx := utils.SystemContext(context.Background(), "seed-admin")
	user, created, err := models.EnsureAdminUser(ctx, username, name, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed admin: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("created admin user %s (id=%d)\n", user.Username, user.ID)
		return
	}
	fmt.Printf("updated admin user %s (id=%d)\n", user.Username, user.ID)
}
