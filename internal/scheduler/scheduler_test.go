package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	calls int
	err   error
}

func (f *fakeCatalog) Refresh(context.Context) error {
	f.calls++
	return f.err
}

type fakeSweeper struct{ calls int }

func (f *fakeSweeper) Sweep() int {
	f.calls++
	return 2
}

type fakePruner struct {
	olderThan time.Time
}

func (f *fakePruner) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	f.olderThan = olderThan
	return 1, nil
}

func TestNew_RegistersConfiguredJobs(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		jobs Jobs
		want int
	}{
		{
			name: "all jobs",
			cfg:  Config{LocationRefresh: "0 */10 * * * *", SessionSweep: "0 * * * * *", StorePrune: "0 0 3 * * *", StoreRetention: time.Hour},
			jobs: Jobs{Catalog: &fakeCatalog{}, Sessions: &fakeSweeper{}, Store: &fakePruner{}},
			want: 3,
		},
		{
			name: "empty specs disable jobs",
			cfg:  Config{SessionSweep: "0 * * * * *"},
			jobs: Jobs{Catalog: &fakeCatalog{}, Sessions: &fakeSweeper{}},
			want: 1,
		},
		{
			name: "prune needs retention",
			cfg:  Config{StorePrune: "0 0 3 * * *"},
			jobs: Jobs{Store: &fakePruner{}},
			want: 0,
		},
		{
			name: "missing target skipped",
			cfg:  Config{LocationRefresh: "0 */10 * * * *"},
			jobs: Jobs{},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg, tt.jobs, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Entries())
		})
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(Config{SessionSweep: "every minute"}, Jobs{Sessions: &fakeSweeper{}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_sweep")
}

func TestJobs(t *testing.T) {
	cat := &fakeCatalog{err: errors.New("backend down")}
	sweeper := &fakeSweeper{}
	pruner := &fakePruner{}
	s, err := New(Config{StoreRetention: 24 * time.Hour}, Jobs{Catalog: cat, Sessions: sweeper, Store: pruner}, nil)
	require.NoError(t, err)
	now := time.Date(2025, 5, 2, 3, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.RefreshLocations()
	s.SweepSessions()
	s.PruneStore()

	assert.Equal(t, 1, cat.calls)
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, now.Add(-24*time.Hour), pruner.olderThan)
}

func TestStartStop(t *testing.T) {
	s, err := New(Config{SessionSweep: "* * * * * *"}, Jobs{Sessions: &fakeSweeper{}}, nil)
	require.NoError(t, err)

	s.Start()
	s.Stop()
}
