package graphdb

import (
	"context"
	"fmt"
)

// uniqueKeys lists the node properties that must be unique per label.
var uniqueKeys = []struct {
	Label    string
	Property string
}{
	{"User", "id"},
	{"User", "email"},
	{"Seller", "id"},
	{"Buyer", "id"},
	{"Post", "id"},
	{"Plan", "id"},
	{"Category", "id"},
	{"Notification", "id"},
	{"Wallet", "id"},
}

// EnsureSchema creates the uniqueness constraints the repositories rely on.
// It is idempotent and safe to run on every deploy.
func EnsureSchema(ctx context.Context, runner DBRunner) error {
	for _, k := range uniqueKeys {
		query := fmt.Sprintf(
			"CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:`%s`) REQUIRE n.`%s` IS UNIQUE",
			k.Label, k.Property, k.Label, k.Property,
		)
		if _, err := runner.Write(ctx, query, nil); err != nil {
			return fmt.Errorf("create constraint on %s.%s: %w", k.Label, k.Property, err)
		}
	}
	return nil
}
