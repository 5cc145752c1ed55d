package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

const preflightTimeout = 2 * time.Second

// captureSidecars are the files SQLite may keep next to the capture database.
var captureSidecars = []string{"", "-wal", "-shm", "-journal"}

// preflight runs a bounded quick_check against an existing capture database.
// A database that fails the check is renamed aside with its sidecars so the
// monitor starts with a fresh file. It returns the quarantine path, or "" when
// the database was healthy or absent.
func preflight(path string, timeout time.Duration) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}
	if timeout <= 0 {
		timeout = preflightTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return "", fmt.Errorf("preflight: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	checkErr := quickCheck(ctx, db)
	db.Close()
	if checkErr == nil {
		return "", nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("preflight: timed out after %s", timeout)
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	for _, suffix := range captureSidecars {
		src := path + suffix
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, src+".bad-"+stamp); err != nil {
			return "", fmt.Errorf("preflight: quarantine %s: %w", src, err)
		}
	}
	dest := path + ".bad-" + stamp
	log.Printf("Recorder: capture database failed quick_check (%v); moved to %s", checkErr, dest)
	return dest, nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}
