// Package persistence provides infrastructure implementations for data persistence.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

// MaxStateFileSize is the maximum allowed size for the state file (8MB).
const MaxStateFileSize = 8 << 20

// stateFormatVersion is bumped on incompatible changes to the file layout.
const stateFormatVersion = 1

// maxDecodeWorkers bounds concurrent decoding of resource entries.
const maxDecodeWorkers = 4

// checkContext checks if the context is canceled and returns the error if so.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// FileStateRepository persists resource snapshots to a single JSON file.
type FileStateRepository struct {
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

// NewFileStateRepository creates a repository backed by path. The parent
// directory is created if needed.
func NewFileStateRepository(path string) (*FileStateRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStateRepository{path: path, now: time.Now}, nil
}

// Path returns the state file path.
func (r *FileStateRepository) Path() string {
	return r.path
}

// stateFileDTO is the on-disk layout. Resources are kept raw so they can
// be decoded in parallel.
type stateFileDTO struct {
	Version   int               `json:"version"`
	SavedAt   string            `json:"saved_at"`
	Resources []json.RawMessage `json:"resources"`
}

type resourceDTO struct {
	Name             string  `json:"name"`
	Description      string  `json:"description,omitempty"`
	Labels           string  `json:"labels,omitempty"`
	Note             string  `json:"note,omitempty"`
	Ephemeral        bool    `json:"ephemeral,omitempty"`
	ReservedBy       string  `json:"reserved_by,omitempty"`
	ReservedAt       *string `json:"reserved_at,omitempty"`
	Stolen           bool    `json:"stolen,omitempty"`
	BuildID          string  `json:"build_id,omitempty"`
	LockedAt         *string `json:"locked_at,omitempty"`
	QueueItemID      int64   `json:"queue_item_id,omitempty"`
	QueueItemProject string  `json:"queue_item_project,omitempty"`
	QueuingStarted   int64   `json:"queuing_started,omitempty"`
}

// Save writes all snapshots, sorted by name, replacing the previous state.
func (r *FileStateRepository) Save(ctx context.Context, snapshots []resource.Snapshot) error {
	const op = "state.Save"
	if err := checkContext(ctx); err != nil {
		return err
	}

	sorted := append([]resource.Snapshot(nil), snapshots...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	file := stateFileDTO{
		Version:   stateFormatVersion,
		SavedAt:   r.now().UTC().Format(time.RFC3339Nano),
		Resources: make([]json.RawMessage, 0, len(sorted)),
	}
	for _, s := range sorted {
		raw, err := json.Marshal(toDTO(s))
		if err != nil {
			return lrerrors.StateWrap(err, op, fmt.Sprintf("failed to marshal resource %q", s.Name))
		}
		file.Resources = append(file.Resources, raw)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return lrerrors.StateWrap(err, op, "failed to marshal state")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := writeFileAtomic(r.path, data, 0o600); err != nil {
		return lrerrors.IOWrap(err, op, "failed to write state file")
	}
	return nil
}

// Load reads all snapshots. A missing file yields no snapshots.
func (r *FileStateRepository) Load(ctx context.Context) ([]resource.Snapshot, error) {
	const op = "state.Load"
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	data, err := readFileLimited(r.path, MaxStateFileSize)
	r.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, lrerrors.IOWrap(err, op, "failed to read state file")
	}

	var file stateFileDTO
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, lrerrors.StateWrap(err, op, "failed to unmarshal state")
	}
	if file.Version != stateFormatVersion {
		return nil, lrerrors.State(op, fmt.Sprintf("unsupported state version %d", file.Version))
	}

	snapshots := make([]resource.Snapshot, len(file.Resources))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxDecodeWorkers)
	for i, raw := range file.Resources {
		g.Go(func() error {
			if err := checkContext(gCtx); err != nil {
				return err
			}
			var dto resourceDTO
			if err := json.Unmarshal(raw, &dto); err != nil {
				return lrerrors.StateWrap(err, op, fmt.Sprintf("failed to unmarshal resource #%d", i))
			}
			s, err := fromDTO(&dto)
			if err != nil {
				return lrerrors.StateWrap(err, op, fmt.Sprintf("invalid resource %q", dto.Name))
			}
			snapshots[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func toDTO(s resource.Snapshot) *resourceDTO {
	return &resourceDTO{
		Name:             s.Name,
		Description:      s.Description,
		Labels:           s.Labels,
		Note:             s.Note,
		Ephemeral:        s.Ephemeral,
		ReservedBy:       s.ReservedBy,
		ReservedAt:       formatTime(s.ReservedAt),
		Stolen:           s.Stolen,
		BuildID:          s.BuildID,
		LockedAt:         formatTime(s.LockedAt),
		QueueItemID:      s.QueueItemID,
		QueueItemProject: s.QueueItemProject,
		QueuingStarted:   s.QueuingStarted,
	}
}

func fromDTO(dto *resourceDTO) (resource.Snapshot, error) {
	if dto.Name == "" {
		return resource.Snapshot{}, fmt.Errorf("missing name")
	}
	reservedAt, err := parseTime(dto.ReservedAt)
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("reserved_at: %w", err)
	}
	lockedAt, err := parseTime(dto.LockedAt)
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("locked_at: %w", err)
	}
	return resource.Snapshot{
		Name:             dto.Name,
		Description:      dto.Description,
		Labels:           dto.Labels,
		Note:             dto.Note,
		Ephemeral:        dto.Ephemeral,
		ReservedBy:       dto.ReservedBy,
		ReservedAt:       reservedAt,
		Stolen:           dto.Stolen,
		BuildID:          dto.BuildID,
		LockedAt:         lockedAt,
		QueueItemID:      dto.QueueItemID,
		QueueItemProject: dto.QueueItemProject,
		QueuingStarted:   dto.QueuingStarted,
	}, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func parseTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
