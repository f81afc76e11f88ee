package claimsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/accessportal/internal/claims"
	"github.com/hitoshi/accessportal/internal/model"
	"github.com/hitoshi/accessportal/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStore は書き込みごとに1秒進む時計を持つMemoryStoreを返す。
func newStore() *repository.MemoryStore {
	store := repository.NewMemoryStore()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return store
}

// seedUser はidentityとプロフィールを作成する。identityのクレームはprofileより前に設定する。
func seedUser(t *testing.T, store *repository.MemoryStore, id string, role, current model.RoleClaims) {
	t.Helper()
	ctx := context.Background()
	repos := store.Repos()
	require.NoError(t, repos.Identities.Create(ctx, &model.Identity{
		ID: id, Provider: "google", ProviderUserID: "sub-" + id, Email: id + "@example.com",
	}))
	require.NoError(t, repos.Identities.ReplaceClaims(ctx, id, current))
	require.NoError(t, repos.Profiles.Create(ctx, &model.Profile{
		ID: id, Name: id, Email: id + "@example.com",
		IsAdmin: role.IsAdmin, IsTechLead: role.IsTechLead, TeamID: role.TeamID,
	}))
}

func newJob(store *repository.MemoryStore, syncer ProfileSyncer) *Job {
	repos := store.Repos()
	return NewJob(repos.Profiles, repos.Identities, syncer, testLogger(), Config{Interval: time.Hour})
}

func TestDrifted(t *testing.T) {
	team := model.StringPtr("T1")
	claimsAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := claimsAt.Add(time.Minute)
	earlier := claimsAt.Add(-time.Minute)

	tests := []struct {
		name      string
		profile   model.Profile
		current   model.RoleClaims
		updatedAt time.Time
		want      bool
	}{
		{"in sync", model.Profile{IsTechLead: true, TeamID: team}, model.RoleClaims{IsTechLead: true, TeamID: model.StringPtr("T1")}, later, false},
		{"member team is not projected", model.Profile{TeamID: team}, model.RoleClaims{}, later, false},
		{"admin missing", model.Profile{IsAdmin: true}, model.RoleClaims{}, later, true},
		{"lead team changed", model.Profile{IsTechLead: true, TeamID: model.StringPtr("T2")}, model.RoleClaims{IsTechLead: true, TeamID: team}, later, true},
		{"stale lead claim", model.Profile{}, model.RoleClaims{IsTechLead: true, TeamID: team}, later, true},
		{"claims written after profile", model.Profile{}, model.RoleClaims{IsAdmin: true}, earlier, false},
		{"same instant", model.Profile{}, model.RoleClaims{IsAdmin: true}, claimsAt, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.profile.UpdatedAt = tt.updatedAt
			ident := &model.Identity{Claims: tt.current, ClaimsUpdatedAt: claimsAt}
			assert.Equal(t, tt.want, Drifted(&tt.profile, ident))
		})
	}
}

func TestRunOnce_DirectClaimsGrantIsKept(t *testing.T) {
	store := newStore()
	seedUser(t, store, "u1", model.RoleClaims{}, model.RoleClaims{})
	repos := store.Repos()
	issuer := claims.NewIssuer(repos.Identities, repos.Profiles, nil, testLogger())

	// プロフィール作成後にクレームを直接付与する
	_, err := issuer.Apply(context.Background(), "u1", model.RoleClaims{IsAdmin: true})
	require.NoError(t, err)

	result, err := newJob(store, issuer).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1}, result)

	ident, err := repos.Identities.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, ident.Claims.IsAdmin)
}

func TestRunOnce_SyncsDriftedProfiles(t *testing.T) {
	store := newStore()
	seedUser(t, store, "admin", model.RoleClaims{IsAdmin: true}, model.RoleClaims{})
	seedUser(t, store, "lead", model.RoleClaims{IsTechLead: true, TeamID: model.StringPtr("T1")}, model.RoleClaims{IsTechLead: true, TeamID: model.StringPtr("T1")})
	seedUser(t, store, "ex-lead", model.RoleClaims{}, model.RoleClaims{IsTechLead: true, TeamID: model.StringPtr("T9")})

	repos := store.Repos()
	issuer := claims.NewIssuer(repos.Identities, repos.Profiles, nil, testLogger())
	job := newJob(store, issuer)

	result, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 3, Drifted: 2, Synced: 2}, result)

	admin, err := repos.Identities.FindByID(context.Background(), "admin")
	require.NoError(t, err)
	assert.True(t, admin.Claims.IsAdmin)

	exLead, err := repos.Identities.FindByID(context.Background(), "ex-lead")
	require.NoError(t, err)
	assert.True(t, exLead.Claims.Equal(model.DefaultRoleClaims()))

	// 2回目は乖離がない
	result, err = job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 3}, result)
}

func TestRunOnce_MissingIdentityIsSkipped(t *testing.T) {
	store := newStore()
	seedUser(t, store, "u1", model.RoleClaims{}, model.RoleClaims{})

	job := NewJob(store.Repos().Profiles, identityListFunc(func(ctx context.Context) ([]*model.Identity, error) {
		return nil, nil
	}), syncFunc(func(ctx context.Context, id string) error {
		t.Fatalf("SyncProfile must not be called, got %s", id)
		return nil
	}), testLogger(), Config{})

	result, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1, MissingIdentity: 1}, result)
}

func TestRunOnce_WriteFailureIsCountedAndRetriedNextCycle(t *testing.T) {
	store := newStore()
	seedUser(t, store, "admin", model.RoleClaims{IsAdmin: true}, model.RoleClaims{})
	repos := store.Repos()
	issuer := claims.NewIssuer(repos.Identities, repos.Profiles, nil, testLogger())
	job := newJob(store, issuer)

	store.SetWriteFault(func(op string) error {
		if op == "identities.replace_claims" {
			return errors.New("unavailable")
		}
		return nil
	})
	result, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Synced)

	store.SetWriteFault(nil)
	result, err = job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
}

func TestRunOnce_MaxSyncsPerCycle(t *testing.T) {
	store := newStore()
	for _, id := range []string{"a", "b", "c"} {
		seedUser(t, store, id, model.RoleClaims{IsAdmin: true}, model.RoleClaims{})
	}
	var calls atomic.Int32
	repos := store.Repos()
	job := NewJob(repos.Profiles, repos.Identities, syncFunc(func(ctx context.Context, id string) error {
		calls.Add(1)
		return nil
	}), testLogger(), Config{MaxSyncsPerCycle: 2})

	result, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Drifted)
	assert.Equal(t, 2, result.Synced)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRunOnce_BackoffAfterConsecutiveListErrors(t *testing.T) {
	var listCalls int
	profiles := profileListFunc(func(ctx context.Context) ([]*model.Profile, error) {
		listCalls++
		return nil, errors.New("db down")
	})
	job := NewJob(profiles, identityListFunc(func(ctx context.Context) ([]*model.Identity, error) {
		return nil, nil
	}), syncFunc(func(ctx context.Context, id string) error { return nil }), testLogger(), Config{})

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := job.RunOnce(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, now.Add(5*time.Minute), job.backoffUntil)

	// バックオフ中はスキップ
	_, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, listCalls)

	now = now.Add(6 * time.Minute)
	_, err = job.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, listCalls)
}

func TestErrorBackoff(t *testing.T) {
	assert.Equal(t, time.Duration(0), errorBackoff(2))
	assert.Equal(t, 5*time.Minute, errorBackoff(3))
	assert.Equal(t, 30*time.Minute, errorBackoff(5))
	assert.Equal(t, 2*time.Hour, errorBackoff(12))
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	ran := make(chan struct{}, 1)
	job := NewJob(profileListFunc(func(ctx context.Context) ([]*model.Profile, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil, nil
	}), identityListFunc(func(ctx context.Context) ([]*model.Identity, error) {
		return nil, nil
	}), syncFunc(func(ctx context.Context, id string) error { return nil }), testLogger(), Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle did not run on start")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

type profileListFunc func(ctx context.Context) ([]*model.Profile, error)

func (f profileListFunc) List(ctx context.Context) ([]*model.Profile, error) { return f(ctx) }

type identityListFunc func(ctx context.Context) ([]*model.Identity, error)

func (f identityListFunc) List(ctx context.Context) ([]*model.Identity, error) { return f(ctx) }

type syncFunc func(ctx context.Context, id string) error

func (f syncFunc) SyncProfile(ctx context.Context, id string) error { return f(ctx, id) }
