// check-default-combinations re-validates every configured default GL
// combination against the current required segment types and deactivates the
// ones that are no longer complete. Run it after changing segment types.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
)

func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized. Set DB_* env vars.")
		os.Exit(1)
	}

	ctx := utils.SystemContext(context.Background(), "check-default-combinations")
	ctx = utils.SetIsAdminInContext(ctx, true)
	report, err := models.CheckAllDefaultsValidity(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "check failed: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "-json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	invalid := 0
	for _, row := range report {
		state := "ok"
		switch {
		case !row.Configured:
			state = "not configured"
		case !row.Valid:
			invalid++
			state = "missing " + strings.Join(row.Missing, ", ")
			if row.Deactivated {
				state += " (deactivated)"
			}
		}
		fmt.Printf("%-28s %s\n", row.TransactionType, state)
	}
	if invalid > 0 {
		os.Exit(3)
	}
}
