package store

import (
	"fmt"
	"sort"
)

// Migrator is the narrow surface a migration step may use. Backends implement it
// inside their own unit of work so that a step and its version bump commit together.
type Migrator interface {
	CreatePartition(p Partition) error
}

// Migration is one idempotent, additive schema step.
type Migration struct {
	Version int
	Name    string
	Apply   func(m Migrator) error
}

// Migrations is the ordered schema history shared by every backend.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "create image and weather partitions",
		Apply: func(m Migrator) error {
			if err := m.CreatePartition(PartitionImage); err != nil {
				return err
			}
			return m.CreatePartition(PartitionWeather)
		},
	},
	{
		Version: 2,
		Name:    "create holiday partition",
		Apply: func(m Migrator) error {
			return m.CreatePartition(PartitionHoliday)
		},
	},
}

// LatestVersion returns the highest version in migrations, or 0 if there are none.
func LatestVersion(migrations []Migration) int {
	latest := 0
	for _, m := range migrations {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}

// Pending returns the migrations above current, in ascending version order.
func Pending(migrations []Migration, current int) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	return pending
}

// applyPending runs every pending step through step, which is expected to wrap the
// migration and the version bump in a single backend transaction.
func applyPending(migrations []Migration, current int, step func(m Migration) error) (int, error) {
	version := current
	for _, m := range Pending(migrations, current) {
		if m.Apply == nil {
			return version, fmt.Errorf("migration %d (%s) has no apply step", m.Version, m.Name)
		}
		if err := step(m); err != nil {
			return version, fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		version = m.Version
	}
	return version, nil
}

// partitionSet is a Migrator that only records partition names. Backends without
// DDL (memory, redis, firestore) use it to learn which partitions exist.
type partitionSet map[Partition]struct{}

func (s partitionSet) CreatePartition(p Partition) error {
	if p == "" {
		return fmt.Errorf("partition name is required")
	}
	s[p] = struct{}{}
	return nil
}

func (s partitionSet) has(p Partition) bool {
	_, ok := s[p]
	return ok
}
