package roles

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/hitoshi/accessportal/internal/model"
	"github.com/hitoshi/accessportal/internal/repository"
)

// --- テスト用モック ---

type mockSyncer struct {
	mu      sync.Mutex
	synced  []string
	syncErr error
}

func (m *mockSyncer) SyncProfile(_ context.Context, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = append(m.synced, profileID)
	return m.syncErr
}

type mockRecorder struct {
	denied    []string
	mutations []string
	overrides int
}

func (m *mockRecorder) RecordAuthzDenied(action string) { m.denied = append(m.denied, action) }
func (m *mockRecorder) RecordRoleMutation(op, result string) {
	m.mutations = append(m.mutations, op+":"+result)
}
func (m *mockRecorder) RecordLeadOverride() { m.overrides++ }

// --- フィクスチャ ---

type fixture struct {
	store    *repository.MemoryStore
	engine   *Engine
	syncer   *mockSyncer
	recorder *mockRecorder
}

func newFixture(t *testing.T, profileIDs ...string) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()
	repos := store.Repos()

	for _, id := range profileIDs {
		if err := repos.Identities.Create(ctx, &model.Identity{ID: id, Provider: "google", ProviderUserID: id}); err != nil {
			t.Fatalf("identity作成に失敗: %v", err)
		}
		if err := repos.Profiles.Create(ctx, &model.Profile{ID: id, Name: id}); err != nil {
			t.Fatalf("プロフィール作成に失敗: %v", err)
		}
	}
	for _, id := range []string{"s1", "s2"} {
		if err := repos.Services.Create(ctx, &model.Service{ID: id, Name: "service " + id}); err != nil {
			t.Fatalf("サービス作成に失敗: %v", err)
		}
	}

	syncer := &mockSyncer{}
	recorder := &mockRecorder{}
	engine := NewEngine(store, syncer, recorder, nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	return &fixture{store: store, engine: engine, syncer: syncer, recorder: recorder}
}

func adminCaller() *model.Caller {
	return &model.Caller{UID: "admin", Claims: model.RoleClaims{IsAdmin: true}}
}

func (f *fixture) profile(t *testing.T, id string) *model.Profile {
	t.Helper()
	p, err := f.store.Repos().Profiles.FindByID(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("プロフィール %s の取得に失敗: %v", id, err)
	}
	return p
}

func (f *fixture) team(t *testing.T, id string) *model.Team {
	t.Helper()
	team, err := f.store.Repos().Teams.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("チーム %s の取得に失敗: %v", id, err)
	}
	return team
}

func (f *fixture) createTeam(t *testing.T, name, lead string) *model.Team {
	t.Helper()
	team, err := f.engine.CreateTeam(context.Background(), adminCaller(), TeamInput{Name: name, TechLeadID: lead})
	if err != nil {
		t.Fatalf("CreateTeam(%s) returned error: %v", name, err)
	}
	return team
}

// --- CreateTeam ---

func TestCreateTeam_PromotesLeadAndAssignsTeam(t *testing.T) {
	f := newFixture(t, "p1")

	team, err := f.engine.CreateTeam(context.Background(), adminCaller(), TeamInput{
		Name:                " <b>Core</b> ",
		TechLeadID:          "p1",
		AvailableServiceIDs: []string{"s1", "s1", " ", "s2"},
	})
	if err != nil {
		t.Fatalf("CreateTeam returned error: %v", err)
	}
	if team.ID == "" || team.Name != "Core" {
		t.Errorf("unexpected team: %+v", team)
	}
	if len(team.AvailableServiceIDs) != 2 {
		t.Errorf("availableServiceIds = %v, want deduplicated [s1 s2]", team.AvailableServiceIDs)
	}

	p1 := f.profile(t, "p1")
	if !p1.IsTechLead {
		t.Error("p1.isTechLead should be true")
	}
	if p1.TeamID == nil || *p1.TeamID != team.ID {
		t.Errorf("p1.teamId = %v, want %s", p1.TeamID, team.ID)
	}
	if len(f.syncer.synced) != 1 || f.syncer.synced[0] != "p1" {
		t.Errorf("synced = %v, want [p1]", f.syncer.synced)
	}
}

func TestCreateTeam_LeadOfAnotherTeamKeepsLedTeam(t *testing.T) {
	f := newFixture(t, "p1")
	first := f.createTeam(t, "First", "p1")
	f.createTeam(t, "Second", "p1")

	if got := f.profile(t, "p1").TeamID; got == nil || *got != first.ID {
		t.Errorf("teamId = %v, want first team %s", got, first.ID)
	}
}

// 他チームのメンバーをリードにすると、teamIdは新しく率いるチームへ移る。
func TestCreateTeam_MemberOfOtherTeamMovesToLedTeam(t *testing.T) {
	f := newFixture(t, "p1", "m")
	ctx := context.Background()
	x := f.createTeam(t, "X", "p1")
	if _, err := f.engine.EditUserRole(ctx, adminCaller(), "m", model.RoleClaims{TeamID: model.StringPtr(x.ID)}); err != nil {
		t.Fatalf("EditUserRole returned error: %v", err)
	}

	y := f.createTeam(t, "Y", "m")

	m := f.profile(t, "m")
	if !m.IsTechLead || m.TeamID == nil || *m.TeamID != y.ID {
		t.Errorf("m = %+v, want tech lead of %s", m, y.ID)
	}
	if got := f.profile(t, "p1").TeamID; got == nil || *got != x.ID {
		t.Errorf("p1.teamId = %v, want %s", got, x.ID)
	}
}

func TestCreateTeam_UnknownLeadPersistsNothing(t *testing.T) {
	f := newFixture(t, "p1")

	_, err := f.engine.CreateTeam(context.Background(), adminCaller(), TeamInput{Name: "Core", TechLeadID: "ghost"})
	if !model.IsCode(err, model.ErrCodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}

	teams, _ := f.store.Repos().Teams.List(context.Background())
	if len(teams) != 0 {
		t.Errorf("teams = %d, want 0", len(teams))
	}
	if len(f.syncer.synced) != 0 {
		t.Errorf("no claims sync expected, got %v", f.syncer.synced)
	}
}

func TestCreateTeam_ValidationErrors(t *testing.T) {
	f := newFixture(t, "p1")

	tests := []struct {
		name  string
		in    TeamInput
		field string
	}{
		{"empty name", TeamInput{Name: "  ", TechLeadID: "p1"}, "name"},
		{"markup only name", TeamInput{Name: "<script>x</script>", TechLeadID: "p1"}, "name"},
		{"empty lead", TeamInput{Name: "Core"}, "techLeadId"},
		{"unknown service", TeamInput{Name: "Core", TechLeadID: "p1", AvailableServiceIDs: []string{"s1", "s9"}}, "availableServiceIds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateTeam(context.Background(), adminCaller(), tt.in)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidArgument {
				t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
			}
			if apiErr.Details["field"] != tt.field {
				t.Errorf("field = %q, want %q", apiErr.Details["field"], tt.field)
			}
		})
	}

	if f.profile(t, "p1").IsTechLead {
		t.Error("p1 must not be promoted by rejected calls")
	}
}

func TestCreateTeam_NonAdminIsDenied(t *testing.T) {
	f := newFixture(t, "p1")
	lead := &model.Caller{UID: "p9", Claims: model.RoleClaims{IsTechLead: true, TeamID: model.StringPtr("T1")}}

	_, err := f.engine.CreateTeam(context.Background(), lead, TeamInput{Name: "Core", TechLeadID: "p1"})
	if !model.IsCode(err, model.ErrCodePermissionDenied) {
		t.Fatalf("expected PERMISSION_DENIED, got %v", err)
	}
	if len(f.recorder.denied) != 1 || f.recorder.denied[0] != "manage-team" {
		t.Errorf("denied = %v", f.recorder.denied)
	}

	_, err = f.engine.CreateTeam(context.Background(), nil, TeamInput{Name: "Core", TechLeadID: "p1"})
	if !model.IsCode(err, model.ErrCodePermissionDenied) {
		t.Fatalf("nil caller: expected PERMISSION_DENIED, got %v", err)
	}
}

// --- シナリオ ---

// 作成でリード昇格、リード交代で旧リード降格、削除で新リード降格。
func TestTeamLifecycle_EndToEnd(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	ctx := context.Background()

	team := f.createTeam(t, "Core", "p1")
	if !f.profile(t, "p1").IsTechLead {
		t.Fatal("p1 should be tech lead after create")
	}

	if _, err := f.engine.UpdateTeam(ctx, adminCaller(), team.ID, TeamInput{Name: "Core", TechLeadID: "p2"}); err != nil {
		t.Fatalf("UpdateTeam returned error: %v", err)
	}
	if !f.profile(t, "p2").IsTechLead {
		t.Error("p2 should be tech lead after reassignment")
	}
	if f.profile(t, "p1").IsTechLead {
		t.Error("p1 should be demoted (leads no other team)")
	}
	if got := f.team(t, team.ID).TechLeadID; got != "p2" {
		t.Errorf("team lead = %s, want p2", got)
	}

	if err := f.engine.DeleteTeam(ctx, adminCaller(), team.ID); err != nil {
		t.Fatalf("DeleteTeam returned error: %v", err)
	}
	if f.profile(t, "p2").IsTechLead {
		t.Error("p2 should be demoted after delete")
	}
	if f.team(t, team.ID) != nil {
		t.Error("team should be deleted")
	}

	want := []string{"p1", "p2", "p1", "p2"}
	if len(f.syncer.synced) != len(want) {
		t.Fatalf("synced = %v, want %v", f.syncer.synced, want)
	}
	for i := range want {
		if f.syncer.synced[i] != want[i] {
			t.Errorf("synced[%d] = %s, want %s", i, f.syncer.synced[i], want[i])
		}
	}
}

// 複数チームを率いるリードは、残りのチームがある限り降格されない。
func TestDeleteTeam_LeadOfAnotherTeamKeepsFlag(t *testing.T) {
	f := newFixture(t, "p")
	ctx := context.Background()

	teamA := f.createTeam(t, "A", "p")
	teamB := f.createTeam(t, "B", "p")

	if err := f.engine.DeleteTeam(ctx, adminCaller(), teamA.ID); err != nil {
		t.Fatalf("DeleteTeam(A) returned error: %v", err)
	}
	if !f.profile(t, "p").IsTechLead {
		t.Fatal("p must remain tech lead while team B references p")
	}

	if err := f.engine.DeleteTeam(ctx, adminCaller(), teamB.ID); err != nil {
		t.Fatalf("DeleteTeam(B) returned error: %v", err)
	}
	if f.profile(t, "p").IsTechLead {
		t.Error("p should be demoted once no team references p")
	}
}

func TestUpdateTeam_ReassignLeadOfAnotherTeamKeepsFlag(t *testing.T) {
	f := newFixture(t, "p", "q")
	ctx := context.Background()

	teamA := f.createTeam(t, "A", "p")
	teamB := f.createTeam(t, "B", "p")

	if _, err := f.engine.UpdateTeam(ctx, adminCaller(), teamA.ID, TeamInput{Name: "A", TechLeadID: "q"}); err != nil {
		t.Fatalf("UpdateTeam(A) returned error: %v", err)
	}
	if !f.profile(t, "p").IsTechLead {
		t.Fatal("p must remain tech lead while team B references p")
	}

	if _, err := f.engine.UpdateTeam(ctx, adminCaller(), teamB.ID, TeamInput{Name: "B", TechLeadID: "q"}); err != nil {
		t.Fatalf("UpdateTeam(B) returned error: %v", err)
	}
	if f.profile(t, "p").IsTechLead {
		t.Error("p should be demoted after both teams are reassigned")
	}
	if !f.profile(t, "q").IsTechLead {
		t.Error("q should be tech lead")
	}
}

// 他チームのメンバーを既存チームのリードに据えた場合も、teamIdは率いるチームへ移る。
func TestUpdateTeam_NewLeadMovesToLedTeam(t *testing.T) {
	f := newFixture(t, "p", "q", "m")
	ctx := context.Background()
	x := f.createTeam(t, "X", "p")
	y := f.createTeam(t, "Y", "q")
	if _, err := f.engine.EditUserRole(ctx, adminCaller(), "m", model.RoleClaims{TeamID: model.StringPtr(x.ID)}); err != nil {
		t.Fatalf("EditUserRole returned error: %v", err)
	}

	if _, err := f.engine.UpdateTeam(ctx, adminCaller(), y.ID, TeamInput{Name: "Y", TechLeadID: "m"}); err != nil {
		t.Fatalf("UpdateTeam returned error: %v", err)
	}
	if got := f.profile(t, "m").TeamID; got == nil || *got != y.ID {
		t.Errorf("m.teamId = %v, want %s", got, y.ID)
	}
	if q := f.profile(t, "q"); q.IsTechLead {
		t.Errorf("q should be demoted: %+v", q)
	}
}

// リードから外れても他のチームを率いている場合、teamIdは残りのチームへ移る。
func TestUpdateTeam_ReleasedLeadMovesToRemainingTeam(t *testing.T) {
	f := newFixture(t, "p", "q")
	ctx := context.Background()
	teamA := f.createTeam(t, "A", "p")
	teamB := f.createTeam(t, "B", "p")
	f.syncer.synced = nil

	if _, err := f.engine.UpdateTeam(ctx, adminCaller(), teamA.ID, TeamInput{Name: "A", TechLeadID: "q"}); err != nil {
		t.Fatalf("UpdateTeam returned error: %v", err)
	}

	p := f.profile(t, "p")
	if !p.IsTechLead || p.TeamID == nil || *p.TeamID != teamB.ID {
		t.Errorf("p = %+v, want tech lead of %s", p, teamB.ID)
	}
	if got := f.profile(t, "q").TeamID; got == nil || *got != teamA.ID {
		t.Errorf("q.teamId = %v, want %s", got, teamA.ID)
	}
	if len(f.syncer.synced) != 2 || f.syncer.synced[0] != "q" || f.syncer.synced[1] != "p" {
		t.Errorf("synced = %v, want [q p]", f.syncer.synced)
	}
}

func TestDeleteTeam_LeadMovesToRemainingTeam(t *testing.T) {
	f := newFixture(t, "p", "u")
	ctx := context.Background()
	teamA := f.createTeam(t, "A", "p")
	teamB := f.createTeam(t, "B", "p")
	if _, err := f.engine.EditUserRole(ctx, adminCaller(), "u", model.RoleClaims{TeamID: model.StringPtr(teamA.ID)}); err != nil {
		t.Fatalf("EditUserRole returned error: %v", err)
	}
	f.syncer.synced = nil

	if err := f.engine.DeleteTeam(ctx, adminCaller(), teamA.ID); err != nil {
		t.Fatalf("DeleteTeam returned error: %v", err)
	}

	p := f.profile(t, "p")
	if !p.IsTechLead || p.TeamID == nil || *p.TeamID != teamB.ID {
		t.Errorf("p = %+v, want tech lead of %s", p, teamB.ID)
	}
	if got := f.profile(t, "u").TeamID; got == nil || *got != teamA.ID {
		t.Errorf("member teamId must not change, got %v", got)
	}
	if len(f.syncer.synced) != 1 || f.syncer.synced[0] != "p" {
		t.Errorf("synced = %v, want [p]", f.syncer.synced)
	}
}

// チーム書き込みとプロフィール書き込みの間の障害で、どちらもコミットされない。
func TestUpdateTeam_FaultBetweenWritesCommitsNothing(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	ctx := context.Background()
	team := f.createTeam(t, "Core", "p1")
	f.syncer.synced = nil

	teamWritten := false
	f.store.SetWriteFault(func(op string) error {
		switch op {
		case "teams.update":
			teamWritten = true
		case "profiles.set_tech_lead":
			return errors.New("injected fault")
		}
		return nil
	})

	_, err := f.engine.UpdateTeam(ctx, adminCaller(), team.ID, TeamInput{Name: "Renamed", TechLeadID: "p2"})
	f.store.SetWriteFault(nil)

	if !teamWritten {
		t.Fatal("fault must fire after the team write")
	}
	if !model.IsCode(err, model.ErrCodePermissionDenied) {
		t.Fatalf("expected PERMISSION_DENIED-shaped error, got %v", err)
	}
	if err.Error() != model.NewTransactionDeniedError().Error() {
		t.Errorf("cause leaked to caller: %v", err)
	}

	got := f.team(t, team.ID)
	if got.TechLeadID != "p1" || got.Name != "Core" {
		t.Errorf("team write was committed: %+v", got)
	}
	if f.profile(t, "p2").IsTechLead {
		t.Error("p2 promotion was committed")
	}
	if !f.profile(t, "p1").IsTechLead {
		t.Error("p1 demotion was committed")
	}
	if len(f.syncer.synced) != 0 {
		t.Errorf("claims must not sync on abort, got %v", f.syncer.synced)
	}
	if last := f.recorder.mutations[len(f.recorder.mutations)-1]; last != "update_team:aborted" {
		t.Errorf("last mutation metric = %s", last)
	}
}

func TestUpdateTeam_SameLeadChangesNoRoles(t *testing.T) {
	f := newFixture(t, "p1")
	team := f.createTeam(t, "Core", "p1")
	f.syncer.synced = nil

	updated, err := f.engine.UpdateTeam(context.Background(), adminCaller(), team.ID, TeamInput{
		Name: "Core v2", TechLeadID: "p1", AvailableServiceIDs: []string{"s2"},
	})
	if err != nil {
		t.Fatalf("UpdateTeam returned error: %v", err)
	}
	if updated.Name != "Core v2" || len(updated.AvailableServiceIDs) != 1 {
		t.Errorf("unexpected team: %+v", updated)
	}
	if !f.profile(t, "p1").IsTechLead {
		t.Error("p1 should stay tech lead")
	}
	if len(f.syncer.synced) != 0 {
		t.Errorf("no role change expected, synced = %v", f.syncer.synced)
	}
}

func TestUpdateTeam_Errors(t *testing.T) {
	f := newFixture(t, "p1")
	team := f.createTeam(t, "Core", "p1")

	tests := []struct {
		name   string
		teamID string
		in     TeamInput
		code   string
	}{
		{"unknown team", "missing", TeamInput{Name: "X", TechLeadID: "p1"}, model.ErrCodeNotFound},
		{"empty team id", " ", TeamInput{Name: "X", TechLeadID: "p1"}, model.ErrCodeInvalidArgument},
		{"unknown new lead", team.ID, TeamInput{Name: "X", TechLeadID: "ghost"}, model.ErrCodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.UpdateTeam(context.Background(), adminCaller(), tt.teamID, tt.in)
			if !model.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}

	if got := f.team(t, team.ID); got.Name != "Core" {
		t.Errorf("team modified by failed update: %+v", got)
	}
}

func TestDeleteTeam_UnknownTeamIsNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.engine.DeleteTeam(context.Background(), adminCaller(), "missing")
	if !model.IsCode(err, model.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestDeleteTeam_CascadesTeamContacts(t *testing.T) {
	f := newFixture(t, "p1")
	ctx := context.Background()
	team := f.createTeam(t, "Core", "p1")

	contact := &model.Contact{Name: "Core wiki", URL: "https://wiki.example.com", TeamID: model.StringPtr(team.ID)}
	if err := f.store.Repos().Contacts.Create(ctx, contact); err != nil {
		t.Fatalf("contact create: %v", err)
	}

	if err := f.engine.DeleteTeam(ctx, adminCaller(), team.ID); err != nil {
		t.Fatalf("DeleteTeam returned error: %v", err)
	}
	if c, _ := f.store.Repos().Contacts.FindByID(ctx, contact.ID); c != nil {
		t.Error("team contact should be removed with the team")
	}
}

func TestClaimsSyncFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t, "p1")
	f.syncer.syncErr = errors.New("identity provider unavailable")

	if _, err := f.engine.CreateTeam(context.Background(), adminCaller(), TeamInput{Name: "Core", TechLeadID: "p1"}); err != nil {
		t.Fatalf("CreateTeam returned error: %v", err)
	}
	if !f.profile(t, "p1").IsTechLead {
		t.Error("commit must stand even when claims sync fails")
	}
}

// --- EditUserRole ---

func TestEditUserRole_OverwritesRoleFields(t *testing.T) {
	f := newFixture(t, "u1", "lead")
	team := f.createTeam(t, "Core", "lead")
	f.syncer.synced = nil

	profile, err := f.engine.EditUserRole(context.Background(), adminCaller(), "u1", model.RoleClaims{
		IsAdmin: true, TeamID: model.StringPtr(team.ID),
	})
	if err != nil {
		t.Fatalf("EditUserRole returned error: %v", err)
	}
	if !profile.IsAdmin || profile.IsTechLead || profile.TeamID == nil || *profile.TeamID != team.ID {
		t.Errorf("unexpected profile: %+v", profile)
	}

	stored := f.profile(t, "u1")
	if !stored.IsAdmin || stored.TeamID == nil || *stored.TeamID != team.ID {
		t.Errorf("stored profile = %+v", stored)
	}
	if len(f.syncer.synced) != 1 || f.syncer.synced[0] != "u1" {
		t.Errorf("synced = %v", f.syncer.synced)
	}
}

func TestEditUserRole_DemotingReferencedLeadIsAnOverride(t *testing.T) {
	f := newFixture(t, "lead")
	team := f.createTeam(t, "Core", "lead")

	_, err := f.engine.EditUserRole(context.Background(), adminCaller(), "lead", model.RoleClaims{TeamID: model.StringPtr(team.ID)})
	if err != nil {
		t.Fatalf("EditUserRole returned error: %v", err)
	}

	if f.profile(t, "lead").IsTechLead {
		t.Error("admin override should demote the profile")
	}
	if got := f.team(t, team.ID).TechLeadID; got != "lead" {
		t.Errorf("team back-reference must not be rewritten, got %s", got)
	}
	if f.recorder.overrides != 1 {
		t.Errorf("overrides = %d, want 1", f.recorder.overrides)
	}
}

func TestEditUserRole_Errors(t *testing.T) {
	f := newFixture(t, "u1")

	tests := []struct {
		name   string
		caller *model.Caller
		target string
		role   model.RoleClaims
		code   string
	}{
		{"non admin", &model.Caller{UID: "u1"}, "u1", model.RoleClaims{IsAdmin: true}, model.ErrCodePermissionDenied},
		{"empty target", adminCaller(), "", model.RoleClaims{}, model.ErrCodeInvalidArgument},
		{"tech lead without team", adminCaller(), "u1", model.RoleClaims{IsTechLead: true}, model.ErrCodeFailedPrecondition},
		{"unknown team", adminCaller(), "u1", model.RoleClaims{TeamID: model.StringPtr("missing")}, model.ErrCodeInvalidArgument},
		{"unknown user", adminCaller(), "ghost", model.RoleClaims{}, model.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.EditUserRole(context.Background(), tt.caller, tt.target, tt.role)
			if !model.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}

	if p := f.profile(t, "u1"); p.IsAdmin || p.IsTechLead || p.TeamID != nil {
		t.Errorf("profile modified by failed edits: %+v", p)
	}
}

// --- LedTeamIDs ---

func TestLedTeamIDs(t *testing.T) {
	teams := []*model.Team{
		{ID: "A", TechLeadID: "p"},
		{ID: "B", TechLeadID: "p"},
		{ID: "C", TechLeadID: "q"},
	}

	tests := []struct {
		profile, exclude string
		want             []string
	}{
		{"p", "A", []string{"B"}},
		{"p", "B", []string{"A"}},
		{"p", "", []string{"A", "B"}},
		{"q", "C", nil},
		{"r", "A", nil},
		{"q", "A", []string{"C"}},
	}
	for _, tt := range tests {
		if got := LedTeamIDs(teams, tt.profile, tt.exclude); !slices.Equal(got, tt.want) {
			t.Errorf("LedTeamIDs(%s, exclude %s) = %v, want %v", tt.profile, tt.exclude, got, tt.want)
		}
	}
}
