package migrate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	sqlFileRe     = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	createTableRe = regexp.MustCompile(`(?i)create\s+table\s+(?:if\s+not\s+exists\s+)?"?([a-z0-9_]+)"?`)
)

// RequiredTables must be created by the shipped migrations.
var RequiredTables = []string{"payment_splits", "payment_events"}

// Migration is one validated goose file.
type Migration struct {
	Version string
	File    string
	Tables  []string
}

// ValidateDir checks every migration in dir: goose filename, unique version,
// an Up and a Down section that each carry SQL, and that RequiredTables are
// created somewhere in the set. Migrations are returned in version order.
func ValidateDir(dir string) ([]Migration, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var out []Migration
	versions := map[string]string{}
	created := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := versions[m[1]]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		mig, err := parseMigration(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		mig.Version, mig.File = m[1], name
		for _, table := range mig.Tables {
			created[table] = true
		}
		out = append(out, mig)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no migrations found in %q", dir)
	}
	for _, table := range RequiredTables {
		if !created[table] {
			return nil, fmt.Errorf("no migration creates table %q", table)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func parseMigration(path string) (Migration, error) {
	f, err := os.Open(path)
	if err != nil {
		return Migration{}, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	var (
		mig     Migration
		section string
		// statements counts SQL lines per section; a key exists once the marker is seen.
		statements = map[string]int{}
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "-- +goose Up"):
			section = "Up"
			statements[section] = 0
		case strings.HasPrefix(line, "-- +goose Down"):
			section = "Down"
			statements[section] = 0
		case line == "" || strings.HasPrefix(line, "--"):
		case section != "":
			statements[section]++
			if m := createTableRe.FindStringSubmatch(line); m != nil && section == "Up" {
				mig.Tables = append(mig.Tables, strings.ToLower(m[1]))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Migration{}, fmt.Errorf("read %q: %w", path, err)
	}

	name := filepath.Base(path)
	for _, section := range []string{"Up", "Down"} {
		n, ok := statements[section]
		if !ok {
			return Migration{}, fmt.Errorf("migration %q missing \"-- +goose %s\"", name, section)
		}
		if n == 0 {
			return Migration{}, fmt.Errorf("migration %q has an empty %s section", name, section)
		}
	}
	return mig, nil
}
