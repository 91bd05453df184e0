package main

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// managedTables are the tables the migrations create.
var managedTables = []string{"contacts", "contact_signals", "escalation_states"}

// migrationResult counts applied and failed migration files.
type migrationResult struct {
	OK     int
	Failed int
}

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if listOnly {
		if err := listTables(db, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	files, err := migrationFiles(dir)
	if err != nil {
		log.Fatal(err)
	}
	res := applyMigrations(db, dir, files, os.Stdout)
	log.Printf("Done: %d OK, %d errors", res.OK, res.Failed)
	if res.Failed > 0 {
		os.Exit(1)
	}
	log.Println("Migrations complete")
}

// listTables prints which managed tables exist.
func listTables(db *sql.DB, out io.Writer) error {
	rows, err := db.Query("SELECT tablename FROM pg_tables WHERE schemaname='public' AND tablename = ANY($1) ORDER BY tablename",
		"{"+strings.Join(managedTables, ",")+"}")
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		fmt.Fprintln(out, " ", t)
		n++
	}
	fmt.Fprintf(out, "Total: %d of %d tables\n", n, len(managedTables))
	return rows.Err()
}

// migrationFiles returns the .sql files in dir in lexical order.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// applyMigrations runs each file in its own transaction. A failed file is
// rolled back and the rest still run.
func applyMigrations(db *sql.DB, dir string, files []string, out io.Writer) migrationResult {
	var res migrationResult
	for _, f := range files {
		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(out, "  %s ... READ ERROR: %v\n", f, err)
			res.Failed++
			continue
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Fprintf(out, "  %s ... ", f)

		tx, err := db.Begin()
		if err != nil {
			fmt.Fprintf(out, "BEGIN ERROR: %v\n", err)
			res.Failed++
			continue
		}
		if _, err := tx.Exec(content); err != nil {
			tx.Rollback()
			fmt.Fprintf(out, "ERROR: %v\n", err)
			res.Failed++
			continue
		}
		if err := tx.Commit(); err != nil {
			fmt.Fprintf(out, "COMMIT ERROR: %v\n", err)
			res.Failed++
			continue
		}
		fmt.Fprintln(out, "OK")
		res.OK++
	}
	return res
}
