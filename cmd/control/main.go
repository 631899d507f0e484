// Package main implements an operator CLI for out-of-band account
// recovery and tenant bootstrap, the same shape of escape hatch the
// teacher's control tool provides when the HTTP surface cannot be used
// (a locked-out owner, a tenant that needs creating before anyone can
// register against it).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/config"
	"github.com/pierre-platform/security-core/internal/identity"
	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: control <command> [args]")
		fmt.Println("Commands:")
		fmt.Println("  create-tenant    Create a new tenant and its owner membership")
		fmt.Println("  reset-password   Force-set a user's password")
		fmt.Println("  check-user       Inspect a user's tenant memberships")
		fmt.Println("  fix-membership   Re-add a user to a tenant with a given role")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create-tenant":
		createTenantCmd()
	case "reset-password":
		resetPasswordCmd()
	case "check-user":
		checkUserCmd()
	case "fix-membership":
		fixMembershipCmd()
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func connect() (context.Context, *queries.UserQueries, *queries.TenantQueries) {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}
	ctx := context.Background()
	pool, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	return ctx, queries.NewUserQueries(pool), queries.NewTenantQueries(pool)
}

func createTenantCmd() {
	fs := flag.NewFlagSet("create-tenant", flag.ExitOnError)
	name := fs.String("name", "", "Tenant name")
	slug := fs.String("slug", "", "URL slug")
	domain := fs.String("domain", "", "Tenant domain")
	ownerEmail := fs.String("owner-email", "", "Email of the existing user to make owner")
	fs.Parse(os.Args[2:])

	if *name == "" || *slug == "" || *ownerEmail == "" {
		fmt.Println("Error: --name, --slug, and --owner-email are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	ctx, users, tenants := connect()

	owner, err := users.GetByEmail(ctx, *ownerEmail)
	if err != nil {
		log.Fatalf("owner lookup failed: %v", err)
	}

	tenantID := uuid.New()
	if err := tenants.Create(ctx, queries.TenantRow{
		ID:          storage.PgUUID(tenantID),
		Name:        *name,
		Slug:        *slug,
		Domain:      *domain,
		Plan:        "starter",
		OwnerUserID: owner.ID,
	}); err != nil {
		log.Fatalf("create tenant failed: %v", err)
	}

	if err := tenants.AddMember(ctx, queries.TenantMembershipRow{
		TenantID: storage.PgUUID(tenantID),
		UserID:   owner.ID,
		Role:     "owner",
	}); err != nil {
		log.Fatalf("add owner membership failed: %v", err)
	}

	fmt.Println("tenant created")
	fmt.Printf("id:    %s\n", tenantID)
	fmt.Printf("name:  %s\n", *name)
	fmt.Printf("slug:  %s\n", *slug)
	fmt.Printf("owner: %s\n", *ownerEmail)
}

func resetPasswordCmd() {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	email := fs.String("email", "", "User email")
	password := fs.String("password", "", "New password")
	fs.Parse(os.Args[2:])

	if *email == "" || *password == "" {
		fmt.Println("Error: --email and --password are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	ctx, users, _ := connect()

	user, err := users.GetByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("user lookup failed: %v", err)
	}

	hasher := identity.NewBcryptHasher()
	hash, err := hasher.Hash(*password)
	if err != nil {
		log.Fatalf("hash password failed: %v", err)
	}

	if err := users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		log.Fatalf("update password failed: %v", err)
	}

	fmt.Printf("password reset for %s\n", *email)
}

func checkUserCmd() {
	fs := flag.NewFlagSet("check-user", flag.ExitOnError)
	email := fs.String("email", "", "User email")
	fs.Parse(os.Args[2:])

	if *email == "" {
		fmt.Println("Error: --email is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	ctx, users, tenants := connect()

	user, err := users.GetByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("user not found: %v", err)
	}

	id, _ := uuid.FromBytes(user.ID.Bytes[:])
	fmt.Printf("user found\nid:     %s\nemail:  %s\nstatus: %s\n\n", id, user.Email, user.Status)

	memberships, err := tenants.ListMemberships(ctx, user.ID)
	if err != nil {
		log.Fatalf("list memberships failed: %v", err)
	}
	if len(memberships) == 0 {
		fmt.Println("no tenant memberships")
		return
	}
	for _, m := range memberships {
		tenantID, _ := uuid.FromBytes(m.TenantID.Bytes[:])
		fmt.Printf("tenant %s: role=%s\n", tenantID, m.Role)
	}
}

func fixMembershipCmd() {
	fs := flag.NewFlagSet("fix-membership", flag.ExitOnError)
	email := fs.String("email", "", "User email")
	tenant := fs.String("tenant", "", "Tenant ID (UUID)")
	role := fs.String("role", "member", "Role to assign (owner|admin|member)")
	fs.Parse(os.Args[2:])

	if *email == "" || *tenant == "" {
		fmt.Println("Error: --email and --tenant are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	tenantID, err := uuid.Parse(*tenant)
	if err != nil {
		log.Fatalf("invalid tenant id: %v", err)
	}

	ctx, users, tenants := connect()

	user, err := users.GetByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("user not found: %v", err)
	}

	if err := tenants.AddMember(ctx, queries.TenantMembershipRow{
		TenantID: storage.PgUUID(tenantID),
		UserID:   user.ID,
		Role:     *role,
	}); err != nil {
		log.Fatalf("fix membership failed: %v", err)
	}

	fmt.Printf("membership fixed: %s is now %s of tenant %s\n", *email, *role, tenantID)
}
