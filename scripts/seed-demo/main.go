// seed-demo registers a demo source against the local metadata store, creates
// customer identity rules for it, and populates the demo source database with
// a small customers table so a scan run has something to resolve.
//
// Usage: go run ./scripts/seed-demo
//
// Metadata store connection: standard PG* environment variables.
// Demo source connection: DEMO_PG* environment variables (defaults to the
// metadata store credentials with database "goldfuse_demo").
//
// Flags:
//
//	-source-id  ID to register the demo source under (default: demo-crm)
//	-rules      YAML file of identity rules to seed instead of the built-in
//	            customer email/phone pair
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"
)

const demoCustomersDDL = `
CREATE TABLE IF NOT EXISTS demo_customers (
    id    SERIAL PRIMARY KEY,
    email TEXT,
    phone TEXT,
    name  TEXT
)`

// Rows 1 and 2 normalize to the same email and should collapse into one
// golden object; row 4 has no usable key and stays unresolved.
var demoCustomers = []struct {
	email, phone, name string
}{
	{"alice@example.com", "(555) 123-4567", "Alice Johnson"},
	{"ALICE@EXAMPLE.COM", "555.123.4567", "A. Johnson"},
	{"bob@example.com", "(555) 987-6543", "Bob Smith"},
	{"", "", "Mystery Contact"},
	{"carol@example.com", "", "Carol Davis"},
}

func main() {
	sourceID := flag.String("source-id", "demo-crm", "ID to register the demo source under")
	rulesFile := flag.String("rules", "", "YAML file of identity rules to seed")
	flag.Parse()

	ctx := context.Background()

	if err := run(ctx, *sourceID, *rulesFile); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded demo source %q. Start a scan with: curl -X POST localhost:8460/api/scans\n", *sourceID)
}

func run(ctx context.Context, sourceID, rulesFile string) error {
	meta, err := pgx.Connect(ctx, metaConnString())
	if err != nil {
		return fmt.Errorf("connect metadata store: %w", err)
	}
	defer func() { _ = meta.Close(ctx) }()

	demoHost := envOr("DEMO_PGHOST", envOr("PGHOST", "localhost"))
	demoPort := envOr("DEMO_PGPORT", envOr("PGPORT", "5432"))
	demoUser := envOr("DEMO_PGUSER", envOr("PGUSER", "goldfuse"))
	demoPassword := envOr("DEMO_PGPASSWORD", os.Getenv("PGPASSWORD"))
	demoDatabase := envOr("DEMO_PGDATABASE", "goldfuse_demo")

	demo, err := pgx.Connect(ctx, fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		demoHost, demoPort, demoUser, demoPassword, demoDatabase))
	if err != nil {
		return fmt.Errorf("connect demo source: %w", err)
	}
	defer func() { _ = demo.Close(ctx) }()

	if err := seedDemoTable(ctx, demo); err != nil {
		return err
	}

	if err := registerSource(ctx, meta, sourceID, map[string]any{
		"host":     demoHost,
		"port":     demoPort,
		"user":     demoUser,
		"password": demoPassword,
		"database": demoDatabase,
	}); err != nil {
		return err
	}

	rules := defaultRules(sourceID)
	if rulesFile != "" {
		rules, err = loadRules(rulesFile)
		if err != nil {
			return err
		}
	}

	return createRules(ctx, meta, sourceID, rules)
}

func seedDemoTable(ctx context.Context, conn *pgx.Conn) error {
	if _, err := conn.Exec(ctx, demoCustomersDDL); err != nil {
		return fmt.Errorf("create demo_customers: %w", err)
	}

	var count int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM demo_customers`).Scan(&count); err != nil {
		return fmt.Errorf("count demo_customers: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, c := range demoCustomers {
		if _, err := conn.Exec(ctx,
			`INSERT INTO demo_customers (email, phone, name) VALUES ($1, $2, $3)`,
			c.email, c.phone, c.name); err != nil {
			return fmt.Errorf("insert demo customer: %w", err)
		}
	}
	return nil
}

func registerSource(ctx context.Context, conn *pgx.Conn, sourceID string, connection map[string]any) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO engine_sources (id, display_name, source_type, connection, active, created_at, updated_at)
		VALUES ($1, $2, 'postgres', $3, true, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET connection = EXCLUDED.connection, updated_at = NOW()`,
		sourceID, "Demo CRM", connection)
	if err != nil {
		return fmt.Errorf("register demo source: %w", err)
	}
	return nil
}

type seedRule struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	ObjectType    string            `yaml:"object_type"`
	KeyFields     []string          `yaml:"key_fields"`
	Normalization map[string]string `yaml:"normalization"`
	Priority      int               `yaml:"priority"`
}

func defaultRules(sourceID string) []seedRule {
	return []seedRule{
		{
			ID:            sourceID + "-customer-email",
			Name:          "customer by email",
			ObjectType:    "customer",
			KeyFields:     []string{"email"},
			Normalization: map[string]string{"email": "lowercase"},
			Priority:      10,
		},
		{
			ID:            sourceID + "-customer-phone",
			Name:          "customer by phone",
			ObjectType:    "customer",
			KeyFields:     []string{"phone"},
			Normalization: map[string]string{"phone": "digits_only"},
			Priority:      20,
		},
	}
}

func loadRules(path string) ([]seedRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rules []seedRule
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for i, r := range rules {
		if r.ID == "" || len(r.KeyFields) == 0 {
			return nil, fmt.Errorf("rules file entry %d: id and key_fields are required", i)
		}
	}
	return rules, nil
}

func createRules(ctx context.Context, conn *pgx.Conn, sourceID string, rules []seedRule) error {
	for _, r := range rules {
		objectType := r.ObjectType
		if objectType == "" {
			objectType = "customer"
		}
		_, err := conn.Exec(ctx, `
			INSERT INTO engine_identity_rules (
				id, name, object_type, source_system, key_fields,
				normalization, priority, active, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, true, NOW(), NOW())
			ON CONFLICT (id) DO NOTHING`,
			r.ID, r.Name, objectType, sourceID, r.KeyFields, r.Normalization, r.Priority)
		if err != nil {
			return fmt.Errorf("create rule %s: %w", r.ID, err)
		}
	}
	return nil
}

func metaConnString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOr("PGHOST", "localhost"),
		envOr("PGPORT", "5432"),
		envOr("PGUSER", "goldfuse"),
		os.Getenv("PGPASSWORD"),
		envOr("PGDATABASE", "goldfuse_engine"))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
