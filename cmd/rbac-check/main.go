// rbac-check seeds a rule database from a YAML fixture and runs ad-hoc
// authorization checks against it.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/zcloop/rbac"
	"github.com/zcloop/rbac/logger"
	"github.com/zcloop/rbac/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch cmd := os.Args[1]; cmd {
	case "seed":
		handleSeed()
	case "check":
		handleCheck()
	case "perms":
		handlePerms()
	case "groups":
		handleGroups()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("rbac-check - route permission checker")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  rbac-check seed <db> <config.yaml>                   - migrate and load fixtures")
	fmt.Println("  rbac-check check <db> <config.yaml> <uid> <routes>   - check routes (comma separated)")
	fmt.Println("  rbac-check perms <db> <config.yaml> <uid>            - print the effective permission set")
	fmt.Println("  rbac-check groups <db> <config.yaml> <uid>           - print the user's active groups")
}

func openDB(path string) *squealx.DB {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		fatal("open database: %v", err)
	}
	return squealx.NewDb(sqlDB, "sqlite", "rbac")
}

func loadConfig(path string) *rbac.Config {
	data, err := os.ReadFile(path)
	if err != nil {
		fatal("read config: %v", err)
	}
	loader := rbac.NewConfigLoader()
	var cfg *rbac.Config
	if strings.HasSuffix(path, ".json") {
		cfg, err = loader.LoadJSON(data)
	} else {
		cfg, err = loader.LoadYAML(data)
	}
	if err != nil {
		fatal("load config: %v", err)
	}
	return cfg
}

func newChecker(db *squealx.DB, cfg *rbac.Config) *rbac.Checker {
	store := stores.NewSQLRuleStore(db, cfg.Tables)
	checker, err := rbac.New(store,
		rbac.WithConfig(*cfg),
		rbac.WithLogger(logger.NewPhusluLogger()),
	)
	if err != nil {
		fatal("build checker: %v", err)
	}
	return checker
}

func handleSeed() {
	if len(os.Args) < 4 {
		fatal("usage: rbac-check seed <db> <config.yaml>")
	}
	db := openDB(os.Args[2])
	cfg := loadConfig(os.Args[3])

	if err := stores.Migrate(db); err != nil {
		fatal("migrate: %v", err)
	}
	store := stores.NewSQLRuleStore(db, cfg.Tables)
	if err := cfg.Apply(context.Background(), store); err != nil {
		fatal("seed: %v", err)
	}
	fmt.Printf("Seeded %d groups, %d rules, %d memberships, %d users\n",
		len(cfg.Groups), len(cfg.Rules), len(cfg.Memberships), len(cfg.Users))
}

func handleCheck() {
	if len(os.Args) < 6 {
		fatal("usage: rbac-check check <db> <config.yaml> <uid> <routes> [method] [any|all]")
	}
	db := openDB(os.Args[2])
	cfg := loadConfig(os.Args[3])
	uid := parseUID(os.Args[4])
	routes := rbac.SplitRoutes(os.Args[5])

	req := &rbac.Request{Routes: routes, UID: uid}
	if len(os.Args) > 6 && os.Args[6] != "" {
		m, err := rbac.ParseMethod(os.Args[6])
		if err != nil {
			fatal("%v", err)
		}
		req.Method = m
		req.MatchMethod = true
	}
	if len(os.Args) > 7 {
		req.Relation = rbac.Relation(os.Args[7])
	}

	checker := newChecker(db, cfg)
	defer checker.Close()

	ok, err := checker.Check(context.Background(), req)
	if err != nil {
		fatal("check: %v", err)
	}
	if ok {
		fmt.Println("ALLOW")
		return
	}
	fmt.Println("DENY")
	os.Exit(2)
}

func handlePerms() {
	if len(os.Args) < 5 {
		fatal("usage: rbac-check perms <db> <config.yaml> <uid>")
	}
	db := openDB(os.Args[2])
	cfg := loadConfig(os.Args[3])
	uid := parseUID(os.Args[4])

	checker := newChecker(db, cfg)
	defer checker.Close()

	perms, err := checker.ResolveEffectivePermissions(context.Background(), uid)
	if err != nil {
		fatal("resolve: %v", err)
	}
	if len(perms) == 0 {
		fmt.Println("(no permissions)")
		return
	}
	for _, p := range perms {
		method := string(p.Method)
		if method == "" {
			method = "*"
		}
		fmt.Printf("%-8s %s\n", method, p.Route)
	}
}

func handleGroups() {
	if len(os.Args) < 5 {
		fatal("usage: rbac-check groups <db> <config.yaml> <uid>")
	}
	db := openDB(os.Args[2])
	cfg := loadConfig(os.Args[3])
	uid := parseUID(os.Args[4])

	checker := newChecker(db, cfg)
	defer checker.Close()

	groups, err := checker.ResolveGroups(context.Background(), uid)
	if err != nil {
		fatal("resolve groups: %v", err)
	}
	if len(groups) == 0 {
		fmt.Println("(no groups)")
		return
	}
	for _, g := range groups {
		fmt.Printf("%d\t%s\trules=%v\n", g.ID, g.Name, g.Rules)
	}
}

func parseUID(s string) int64 {
	uid, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fatal("bad uid %q", s)
	}
	return uid
}

func fatal(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}
