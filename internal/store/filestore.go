package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// FileStore is the degraded local fallback: one JSON file per lead id,
// overwritten on each save so GetLead always returns the latest
// version. Files written while the primary is down stay on disk for
// manual reconciliation after recovery.
type FileStore struct {
	dir string
}

// NewFileStore creates the fallback directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "filestore: mkdir %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the fallback directory, surfaced in degraded-mode alerts.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Migrate(ctx context.Context) error {
	return nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.dir)
	return eris.Wrapf(err, "filestore: stat %s", s.dir)
}

func (s *FileStore) Close() error {
	return nil
}

// path maps a lead id to its file, replacing separators that would
// escape the fallback directory.
func (s *FileStore) path(id string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
	return filepath.Join(s.dir, safe+".json")
}

// SaveLead writes the record to a temp file and renames it into place,
// so readers only ever observe a fully written version.
func (s *FileStore) SaveLead(ctx context.Context, lead *model.LeadRecord) error {
	record, err := json.MarshalIndent(lead, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "filestore: marshal lead %s", lead.ID)
	}

	dst := s.path(lead.ID)
	tmp, err := os.CreateTemp(s.dir, ".lead-*.tmp")
	if err != nil {
		return eris.Wrap(err, "filestore: create temp")
	}
	if _, err := tmp.Write(record); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "filestore: write lead %s", lead.ID)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "filestore: close temp for %s", lead.ID)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "filestore: rename for %s", lead.ID)
	}
	return nil
}

func (s *FileStore) GetLead(ctx context.Context, id string) (*model.LeadRecord, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "filestore: read lead %s", id)
	}

	var lead model.LeadRecord
	if err := json.Unmarshal(data, &lead); err != nil {
		return nil, eris.Wrapf(err, "filestore: unmarshal lead %s", id)
	}
	return &lead, nil
}

func (s *FileStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "filestore: read dir %s", s.dir)
	}

	var leads []model.LeadRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "filestore: read %s", e.Name())
		}
		var lead model.LeadRecord
		if err := json.Unmarshal(data, &lead); err != nil {
			return nil, eris.Wrapf(err, "filestore: unmarshal %s", e.Name())
		}
		if filter.Stage != "" && lead.Stage != filter.Stage {
			continue
		}
		leads = append(leads, lead)
	}

	sort.Slice(leads, func(i, j int) bool {
		return leads[i].LastUpdatedAt.After(leads[j].LastUpdatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(leads) {
			return nil, nil
		}
		leads = leads[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}
