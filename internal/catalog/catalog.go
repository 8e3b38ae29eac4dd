// Package catalog discovers meter folders and their monthly log files.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

// Config describes where logs live and how they are named
type Config struct {
	Logger         *slog.Logger
	Root           string
	DevicePrefixes []string
	FilePrefix     string
	Suffixes       map[models.Kind]string
	Year           int
	Month          time.Month
	Delimiter      string
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Root == "" {
		return errors.New("root is required")
	}
	if len(c.DevicePrefixes) == 0 {
		return errors.New("at least one device prefix is required")
	}
	if c.Delimiter == "" {
		return errors.New("delimiter is required")
	}
	return nil
}

// FileEntry is one log file inside a device folder
type FileEntry struct {
	Device string
	Name   string
}

// ID returns the "device<delim>file" identifier.
func (e FileEntry) ID(delim string) string {
	return e.Device + delim + e.Name
}

// Path returns the location of the file under root.
func (e FileEntry) Path(root string) string {
	return filepath.Join(root, e.Device, e.Name)
}

// Scanner lists devices and files without reading any file content
type Scanner struct {
	log *slog.Logger
	cfg Config
}

func NewScanner(cfg Config) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{log: cfg.Logger, cfg: cfg}, nil
}

// MonthPrefix is the file name prefix selecting the configured month.
func (s *Scanner) MonthPrefix() string {
	return fmt.Sprintf("%s%04d%02d", s.cfg.FilePrefix, s.cfg.Year, int(s.cfg.Month))
}

// Devices lists the device folders under the root, sorted by name. A
// missing root yields no devices; any other listing error is returned.
func (s *Scanner) Devices() ([]models.Device, error) {
	entries, err := os.ReadDir(s.cfg.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("Data root does not exist, no devices to scan", "root", s.cfg.Root)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list data root %s: %w", s.cfg.Root, err)
	}

	var devices []models.Device
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if device, ok := ParseDevice(entry.Name(), s.cfg.DevicePrefixes); ok {
			devices = append(devices, device)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })

	s.log.Debug("Scanned devices", "root", s.cfg.Root, "count", len(devices))
	return devices, nil
}

// Files lists the month's files of the given kind for each device, sorted by identifier.
func (s *Scanner) Files(devices []models.Device, kind models.Kind) ([]FileEntry, error) {
	suffix, ok := s.cfg.Suffixes[kind]
	if !ok || suffix == "" {
		return nil, fmt.Errorf("no file suffix configured for kind %s", kind)
	}
	return s.FilesWithSuffix(devices, suffix), nil
}

// FilesWithSuffix lists the month's files ending in suffix for each device.
// Unreadable device folders are logged and skipped.
func (s *Scanner) FilesWithSuffix(devices []models.Device, suffix string) []FileEntry {
	prefix := s.MonthPrefix()

	var files []FileEntry
	for _, device := range devices {
		entries, err := os.ReadDir(filepath.Join(s.cfg.Root, device.Name))
		if err != nil {
			s.log.Warn("Failed to list device folder", "device", device.Name, "error", err)
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
				continue
			}
			files = append(files, FileEntry{Device: device.Name, Name: name})
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].ID(s.cfg.Delimiter) < files[j].ID(s.cfg.Delimiter)
	})
	return files
}

// FileIDs lists the month's files of a kind as "device<delim>file" identifiers.
func (s *Scanner) FileIDs(devices []models.Device, kind models.Kind) ([]string, error) {
	files, err := s.Files(devices, kind)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID(s.cfg.Delimiter)
	}
	return ids, nil
}

// ParseDevice matches name against the prefixes and splits the remainder
// into block and unit: "J_B_82_10_27" is block "82", unit "10_27".
func ParseDevice(name string, prefixes []string) (models.Device, bool) {
	for _, prefix := range prefixes {
		if prefix == "" || !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		block, unit, _ := strings.Cut(rest, "_")
		return models.Device{Name: name, Block: block, Unit: unit}, true
	}
	return models.Device{}, false
}

// Blocks returns the sorted, de-duplicated block identifiers of the devices.
func Blocks(devices []models.Device) []string {
	seen := make(map[string]struct{}, len(devices))
	var blocks []string
	for _, d := range devices {
		if _, ok := seen[d.Block]; ok {
			continue
		}
		seen[d.Block] = struct{}{}
		blocks = append(blocks, d.Block)
	}
	sort.Strings(blocks)
	return blocks
}

// InBlock returns the devices belonging to block, preserving order.
func InBlock(devices []models.Device, block string) []models.Device {
	var out []models.Device
	for _, d := range devices {
		if d.Block == block {
			out = append(out, d)
		}
	}
	return out
}

// Names returns the device names.
func Names(devices []models.Device) []string {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return names
}
