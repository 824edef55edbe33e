// Package registry holds the location directory and the technician roster.
//
// Both tables live in an immutable Snapshot. Reloads and roster edits build a
// fresh snapshot and swap it in atomically, so readers never observe a
// partially loaded table.
package registry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/config"
)

// Snapshot is a read-only view of both lookup tables.
type Snapshot struct {
	locations   map[string]string
	technicians map[int64]struct{}
}

// Address returns the address for a location id.
func (s *Snapshot) Address(locationID string) (string, bool) {
	addr, ok := s.locations[strings.TrimSpace(locationID)]
	return addr, ok
}

// HasLocations reports whether a location directory is available at all.
func (s *Snapshot) HasLocations() bool {
	return len(s.locations) > 0
}

// ValidLocation checks a location id. An empty directory means no
// validation is available, so every id passes.
func (s *Snapshot) ValidLocation(locationID string) bool {
	if !s.HasLocations() {
		return true
	}
	_, ok := s.Address(locationID)
	return ok
}

// LocationCount returns the number of known locations.
func (s *Snapshot) LocationCount() int {
	return len(s.locations)
}

// IsTechnician reports roster membership.
func (s *Snapshot) IsTechnician(userID int64) bool {
	_, ok := s.technicians[userID]
	return ok
}

// Technicians returns roster ids in ascending order.
func (s *Snapshot) Technicians() []int64 {
	ids := make([]int64, 0, len(s.technicians))
	for id := range s.technicians {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Snapshot) withTechnicians(ids map[int64]struct{}) *Snapshot {
	return &Snapshot{locations: s.locations, technicians: ids}
}

// Registry owns the current snapshot and its backing files.
type Registry struct {
	cfg     config.RegistryConfig
	logger  *zap.Logger
	current atomic.Pointer[Snapshot]
	// writeMu serializes copy-on-write edits of the roster.
	writeMu sync.Mutex
}

// New creates an empty registry bound to the configured files. Call Reload to
// populate it.
func New(cfg config.RegistryConfig, logger *zap.Logger) *Registry {
	r := &Registry{cfg: cfg, logger: logger}
	r.current.Store(&Snapshot{locations: map[string]string{}, technicians: map[int64]struct{}{}})
	return r
}

// NewStatic builds a registry from in-memory tables, without backing files.
func NewStatic(locations map[string]string, technicians []int64, logger *zap.Logger) *Registry {
	r := &Registry{logger: logger}
	techs := make(map[int64]struct{}, len(technicians))
	for _, id := range technicians {
		techs[id] = struct{}{}
	}
	locs := make(map[string]string, len(locations))
	for k, v := range locations {
		locs[k] = v
	}
	r.current.Store(&Snapshot{locations: locs, technicians: techs})
	return r
}

// Snapshot returns the table set currently in effect.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Reload re-reads both files and swaps the result in.
func (r *Registry) Reload() (*Snapshot, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	locations, err := r.readLocations()
	if err != nil {
		return nil, err
	}
	technicians, err := r.readTechnicians()
	if err != nil {
		return nil, err
	}
	next := &Snapshot{locations: locations, technicians: technicians}
	r.current.Store(next)
	r.logger.Info("registry loaded",
		zap.Int("locations", len(locations)),
		zap.Int("technicians", len(technicians)))
	return next, nil
}

// ReloadTechnicians re-reads only the roster file.
func (r *Registry) ReloadTechnicians() (*Snapshot, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	technicians, err := r.readTechnicians()
	if err != nil {
		return nil, err
	}
	next := r.current.Load().withTechnicians(technicians)
	r.current.Store(next)
	r.logger.Info("technician roster reloaded", zap.Int("technicians", len(technicians)))
	return next, nil
}

// AddTechnician adds an id to the roster and persists it. It reports whether
// the id was newly added.
func (r *Registry) AddTechnician(userID int64) (bool, error) {
	return r.editRoster(func(ids map[int64]struct{}) bool {
		if _, ok := ids[userID]; ok {
			return false
		}
		ids[userID] = struct{}{}
		return true
	})
}

// RemoveTechnician drops an id from the roster and persists it. It reports
// whether the id was present.
func (r *Registry) RemoveTechnician(userID int64) (bool, error) {
	return r.editRoster(func(ids map[int64]struct{}) bool {
		if _, ok := ids[userID]; !ok {
			return false
		}
		delete(ids, userID)
		return true
	})
}

func (r *Registry) editRoster(edit func(map[int64]struct{}) bool) (bool, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur := r.current.Load()
	ids := make(map[int64]struct{}, len(cur.technicians)+1)
	for id := range cur.technicians {
		ids[id] = struct{}{}
	}
	if !edit(ids) {
		return false, nil
	}
	next := cur.withTechnicians(ids)
	if err := r.persistTechnicians(next.Technicians()); err != nil {
		return false, err
	}
	r.current.Store(next)
	return true, nil
}

func (r *Registry) readLocations() (map[string]string, error) {
	f, err := r.open(r.cfg.LocationsPath, "location directory")
	if err != nil || f == nil {
		return map[string]string{}, err
	}
	defer f.Close()
	return ParseTable(f)
}

func (r *Registry) readTechnicians() (map[int64]struct{}, error) {
	f, err := r.open(r.cfg.TechniciansPath, "technician roster")
	if err != nil || f == nil {
		return map[int64]struct{}{}, err
	}
	defer f.Close()
	return ParseRoster(f)
}

// open returns nil without error when the file is missing.
func (r *Registry) open(path, what string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn(what+" not found; continuing with an empty table", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", what, err)
	}
	return f, nil
}

func (r *Registry) persistTechnicians(ids []int64) error {
	if r.cfg.TechniciansPath == "" {
		return nil
	}
	dir := filepath.Dir(r.cfg.TechniciansPath)
	tmp, err := os.CreateTemp(dir, ".techs-*")
	if err != nil {
		return fmt.Errorf("persist roster: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("persist roster: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist roster: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.cfg.TechniciansPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist roster: %w", err)
	}
	r.logger.Info("technician roster saved", zap.String("path", r.cfg.TechniciansPath), zap.Int("technicians", len(ids)))
	return nil
}

// ParseTable reads `id | value` lines. Blank and `#` lines are skipped and
// malformed lines are dropped.
func ParseTable(src io.Reader) (map[string]string, error) {
	table := make(map[string]string)
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, value, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		value = strings.TrimSpace(value)
		if id == "" || value == "" {
			continue
		}
		table[id] = value
	}
	return table, scanner.Err()
}

// ParseRoster reads technician ids, one per line, optionally followed by
// `| comment`. Lines whose id is not numeric are dropped.
func ParseRoster(src io.Reader) (map[int64]struct{}, error) {
	ids := make(map[int64]struct{})
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		left, _, _ := strings.Cut(line, "|")
		id, err := strconv.ParseInt(strings.TrimSpace(left), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids, scanner.Err()
}
