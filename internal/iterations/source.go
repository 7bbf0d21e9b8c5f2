// Package iterations reads and removes the iteration files the agent writes,
// and watches their directory for changes.
package iterations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/playground/internal/reconcile"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// ModeUnknown is reported for files without a recognised @mode tag.
const ModeUnknown = "unknown"

var (
	fileNameRE  = regexp.MustCompile(`^(.+)\.iteration-(\d+)\.tsx$`)
	removableRE = regexp.MustCompile(`^[A-Za-z0-9]+\.iteration-\d+\.tsx$`)

	modeRE        = regexp.MustCompile(`(?i)@mode\s+(Layout|Vibe)`)
	descriptionRE = regexp.MustCompile(`@description\s+(.+)`)
	sourceRE      = regexp.MustCompile(`@source\s+(\S+)`)
)

// maxHeaderBytes bounds how much of each file is read for metadata.
const maxHeaderBytes = 8 << 10

// DirSource lists iteration files in a directory.
type DirSource struct {
	dir    string
	logger *slog.Logger
}

// NewDirSource returns a source for dir.
func NewDirSource(dir string, logger *slog.Logger) *DirSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirSource{dir: dir, logger: logger}
}

// Dir returns the watched directory.
func (s *DirSource) Dir() string { return s.dir }

// List returns every iteration file sorted by component then index. A
// missing directory is an empty listing.
func (s *DirSource) List(ctx context.Context) ([]types.Iteration, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.dir, err)
	}

	var out []types.Iteration
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		it, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		s.readMetadata(&it)
		out = append(out, it)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ComponentRef != out[j].ComponentRef {
			return out[i].ComponentRef < out[j].ComponentRef
		}
		return out[i].IterationIndex < out[j].IterationIndex
	})
	return out, nil
}

// Remove deletes the file for iteration id. The id must be a plain iteration
// filename; anything else is rejected with types.ErrInvalidFilename.
func (s *DirSource) Remove(ctx context.Context, id string) error {
	if !removableRE.MatchString(id) {
		return fmt.Errorf("%q: %w", id, types.ErrInvalidFilename)
	}
	err := os.Remove(filepath.Join(s.dir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	s.logger.Info("iteration file removed", "iteration_id", id)
	return nil
}

func parseFileName(name string) (types.Iteration, bool) {
	m := fileNameRE.FindStringSubmatch(name)
	if m == nil {
		return types.Iteration{}, false
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return types.Iteration{}, false
	}
	return types.Iteration{
		ID:             name,
		ComponentRef:   m[1],
		IterationIndex: index,
		ParentRef:      reconcile.KebabCase(m[1]),
		Mode:           ModeUnknown,
	}, true
}

// readMetadata fills mode, description and source from the file header.
// Unreadable files keep their defaults.
func (s *DirSource) readMetadata(it *types.Iteration) {
	f, err := os.Open(filepath.Join(s.dir, it.ID))
	if err != nil {
		s.logger.Debug("iteration metadata unreadable", "iteration_id", it.ID, "error", err)
		return
	}
	defer f.Close()

	buf := make([]byte, maxHeaderBytes)
	n, _ := f.Read(buf)
	header := string(buf[:n])

	if m := modeRE.FindStringSubmatch(header); m != nil {
		it.Mode = strings.ToLower(m[1])
	}
	if m := descriptionRE.FindStringSubmatch(header); m != nil {
		it.Description = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[1]), "*/"))
	}
	if m := sourceRE.FindStringSubmatch(header); m != nil && m[1] != it.ID {
		it.SourceRef = m[1]
	}
}
