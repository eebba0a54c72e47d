package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/roomguard/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestRoomMembershipsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_room_memberships")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS room_memberships",
		"PRIMARY KEY (room_id, user_id)",
		"CHECK (state IN ('invite', 'join', 'leave', 'ban'))",
		"DROP TABLE IF EXISTS room_memberships",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestRoomsMigrationContainsPowerLevels(t *testing.T) {
	content := readMigration(t, "create_rooms")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS rooms",
		"CREATE TABLE IF NOT EXISTS room_aliases",
		"CREATE TABLE IF NOT EXISTS room_power_levels",
		"kick INTEGER NOT NULL DEFAULT 50",
		"ban INTEGER NOT NULL DEFAULT 50",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDir(t *testing.T) {
	embedded, err := migrate.Source("")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if err := migrate.ValidateFS(embedded); err != nil {
		t.Fatalf("validate embedded: %v", err)
	}
	names, err := fs.Glob(embedded, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	onDisk, _ := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if len(names) == 0 || len(names) != len(onDisk) {
		t.Fatalf("embedded %d migrations, dir has %d", len(names), len(onDisk))
	}
}

func TestValidateDirRejectsMisorderedSections(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x (id INT);\n"
	if err := os.WriteFile(filepath.Join(dir, "20250101000000_x.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected misordered sections to fail")
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Room Topics")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_room_topics.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}
