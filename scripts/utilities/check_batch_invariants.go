//go:build ignore

package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

// Verifies the batch invariants against a live database: no scope entity
// with more than one latest batch, no day covered by two batches, and no
// batched run pointing at a batch of the wrong scope entity.
func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	problems := 0

	for _, scope := range []struct{ kind, fk string }{
		{"org", "org_id"},
		{"network", "network_id"},
	} {
		// Invariant: exactly one latest batch per scope entity.
		query := fmt.Sprintf(`
			SELECT %[1]s::text, COUNT(*)
			FROM question_run_batches
			WHERE scope = '%[2]s' AND is_latest AND deleted_at IS NULL
			GROUP BY %[1]s
			HAVING COUNT(*) > 1`, scope.fk, scope.kind)
		problems += report(db, query, scope.kind+" entities with multiple latest batches")

		// Invariant: at most one batch per (entity, day).
		query = fmt.Sprintf(`
			SELECT %[1]s::text, COUNT(*)
			FROM question_run_batches
			WHERE scope = '%[2]s' AND deleted_at IS NULL
			GROUP BY %[1]s, created_at::date
			HAVING COUNT(*) > 1`, scope.fk, scope.kind)
		problems += report(db, query, scope.kind+" (entity, day) pairs with duplicate batches")

		// Invariant: a batched run's question belongs to the batch's entity.
		query = fmt.Sprintf(`
			SELECT qr.question_run_id::text, 1
			FROM question_runs qr
			JOIN geo_questions gq ON qr.geo_question_id = gq.geo_question_id
			JOIN question_run_batches b ON qr.batch_id = b.batch_id
			WHERE b.scope = '%[2]s'
			AND qr.deleted_at IS NULL
			AND gq.%[1]s IS DISTINCT FROM b.%[1]s`, scope.fk, scope.kind)
		problems += report(db, query, scope.kind+" runs batched under the wrong entity")
	}

	var unbatched int
	if err := db.QueryRow(`
		SELECT COUNT(*)
		FROM question_runs qr
		JOIN geo_questions gq ON qr.geo_question_id = gq.geo_question_id
		WHERE qr.batch_id IS NULL
		AND qr.deleted_at IS NULL
		AND gq.deleted_at IS NULL`).Scan(&unbatched); err != nil {
		log.Fatalf("failed to count unbatched runs: %v", err)
	}
	fmt.Printf("Unbatched runs remaining: %d\n", unbatched)

	if problems > 0 {
		log.Fatalf("found %d invariant violations", problems)
	}
	fmt.Println("✓ All batch invariants hold")
}

func report(db *sql.DB, query, label string) int {
	rows, err := db.Query(query)
	if err != nil {
		log.Fatalf("failed to check %s: %v", label, err)
	}
	defer rows.Close()

	found := 0
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			log.Fatalf("error scanning row: %v", err)
		}
		if found == 0 {
			fmt.Printf("%s:\n", label)
		}
		fmt.Printf("- %s (%d)\n", id, n)
		found++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("failed to iterate %s: %v", label, err)
	}
	return found
}
