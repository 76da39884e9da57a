package store

import (
	"context"

	"github.com/sells-group/outreach-cli/internal/model"
)

// unavailable stands in for a primary whose construction failed. Every
// operation returns the construction error, so the facade's probe keeps
// reporting the primary down until a process restart brings it back.
type unavailable struct {
	err error
}

// Unavailable wraps a primary construction error as a Store that always
// fails, letting the facade start in degraded mode instead of aborting.
func Unavailable(err error) Store {
	return unavailable{err: err}
}

func (u unavailable) SaveLead(ctx context.Context, lead *model.LeadRecord) error {
	return u.err
}

func (u unavailable) GetLead(ctx context.Context, id string) (*model.LeadRecord, error) {
	return nil, u.err
}

func (u unavailable) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	return nil, u.err
}

func (u unavailable) Migrate(ctx context.Context) error {
	return u.err
}

func (u unavailable) Ping(ctx context.Context) error {
	return u.err
}

func (u unavailable) Close() error {
	return nil
}
