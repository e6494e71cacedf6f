// Package migrations holds the schema changes of the back office database:
// collections, validators and indexes. Each file registers one numbered step
// from init and db applies the pending ones when it connects.
package migrations

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"go.mongodb.org/mongo-driver/mongo"
)

// MigrationFunc applies or reverts one step on the database.
type MigrationFunc func(ctx context.Context, database *mongo.Database) error

// Migration is a numbered schema step. Versions are applied in ascending
// order and reverted in descending order.
type Migration struct {
	Version int
	Name    string
	Up      MigrationFunc
	Down    MigrationFunc
}

var registry = map[int]Migration{}

// AddMigration registers a step. It panics when the version is already
// taken or a function is missing, as both are programming errors caught at
// startup.
func AddMigration(version int, name string, up, down MigrationFunc) {
	if version <= 0 || up == nil || down == nil {
		panic(fmt.Sprintf("migration %d (%s) is incomplete", version, name))
	}
	if prev, ok := registry[version]; ok {
		panic(fmt.Sprintf("migration %d (%s) clashes with %s", version, name, prev.Name))
	}
	registry[version] = Migration{Version: version, Name: name, Up: up, Down: down}
}

// DelMigration removes a registered step. Tests use it to drop the steps
// they add.
func DelMigration(version int) { delete(registry, version) }

// Lookup returns the step registered with version.
func Lookup(version int) (Migration, bool) {
	m, ok := registry[version]
	return m, ok
}

// SortedByVersionAsc returns the registered steps, oldest first.
func SortedByVersionAsc() []Migration {
	return slices.SortedFunc(maps.Values(registry), func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
}
