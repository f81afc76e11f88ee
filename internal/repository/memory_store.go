package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/accessportal/internal/model"
)

// WriteFaultFunc は書き込み操作の直前に呼ばれ、エラーを返すとその書き込みを失敗させる。
// opは "teams.update" のような「コレクション.操作」形式。
type WriteFaultFunc func(op string) error

// MemoryStore はプロセス内メモリを使用したStore実装。
// トランザクションは作業コピーに対して実行し、成功時のみ差し替える。
// トランザクション同士は排他ロックで直列化される。
// fn内でRepos()を呼ぶとデッドロックするため、必ず引数のリポジトリを使用すること。
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	fault WriteFaultFunc
	now   func() time.Time
	newID func() string
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// SetWriteFault は書き込み障害の注入関数を設定する。nilで解除する。
func (s *MemoryStore) SetWriteFault(fn WriteFaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// SetClock はサーバー時刻として使用する関数を差し替える。
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Repos はトランザクション外で使用するリポジトリを返す。
// 各操作は単独でアトミックに実行される。
func (s *MemoryStore) Repos() *Repositories {
	return (&memoryView{store: s}).repositories()
}

// Ping は常に成功する。
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// RunInTx はfnを作業コピーに対して実行し、成功時のみコミットする。
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(repos *Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	view := &memoryView{store: s, tx: working}
	if err := fn(view.repositories()); err != nil {
		return err
	}
	s.state = working
	return nil
}

// memoryState はMemoryStoreの全コレクションを保持する。
type memoryState struct {
	profiles   map[string]model.Profile
	teams      map[string]model.Team
	services   map[string]model.Service
	requests   map[string]model.AccessRequest
	contacts   map[string]model.Contact
	identities map[string]model.Identity
}

func newMemoryState() *memoryState {
	return &memoryState{
		profiles:   map[string]model.Profile{},
		teams:      map[string]model.Team{},
		services:   map[string]model.Service{},
		requests:   map[string]model.AccessRequest{},
		contacts:   map[string]model.Contact{},
		identities: map[string]model.Identity{},
	}
}

// clone は全コレクションの深いコピーを返す。
func (st *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range st.profiles {
		v.TeamID = cloneStringPtr(v.TeamID)
		c.profiles[k] = v
	}
	for k, v := range st.teams {
		v.AvailableServiceIDs = append([]string(nil), v.AvailableServiceIDs...)
		c.teams[k] = v
	}
	for k, v := range st.services {
		c.services[k] = v
	}
	for k, v := range st.requests {
		c.requests[k] = cloneRequest(v)
	}
	for k, v := range st.contacts {
		v.TeamID = cloneStringPtr(v.TeamID)
		c.contacts[k] = v
	}
	for k, v := range st.identities {
		v.Claims.TeamID = cloneStringPtr(v.Claims.TeamID)
		c.identities[k] = v
	}
	return c
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneRequest(r model.AccessRequest) model.AccessRequest {
	r.ResolvedBy = cloneStringPtr(r.ResolvedBy)
	r.Notes = cloneStringPtr(r.Notes)
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		r.ResolvedAt = &t
	}
	return r
}

// memoryView はトランザクション内外の状態アクセスを抽象化する。
// txがnilの場合はコミット済み状態に対して1操作ごとにロックを取る。
type memoryView struct {
	store *MemoryStore
	tx    *memoryState
}

func (v *memoryView) repositories() *Repositories {
	return &Repositories{
		Profiles:   &memoryProfileRepo{v},
		Teams:      &memoryTeamRepo{v},
		Services:   &memoryServiceRepo{v},
		Requests:   &memoryRequestRepo{v},
		Contacts:   &memoryContactRepo{v},
		Identities: &memoryIdentityRepo{v},
	}
}

func (v *memoryView) read(fn func(st *memoryState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

func (v *memoryView) write(op string, fn func(st *memoryState, now time.Time) error) error {
	if v.tx != nil {
		if err := v.checkFault(op); err != nil {
			return err
		}
		return fn(v.tx, v.store.now())
	}

	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	if err := v.checkFault(op); err != nil {
		return err
	}
	working := v.store.state.clone()
	if err := fn(working, v.store.now()); err != nil {
		return err
	}
	v.store.state = working
	return nil
}

// checkFault は呼び出し時点でストアのロックを保持していること。
func (v *memoryView) checkFault(op string) error {
	if v.store.fault == nil {
		return nil
	}
	if err := v.store.fault(op); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

// --- profiles ---

type memoryProfileRepo struct{ v *memoryView }

func (r *memoryProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	var out *model.Profile
	err := r.v.read(func(st *memoryState) error {
		if p, ok := st.profiles[id]; ok {
			p.TeamID = cloneStringPtr(p.TeamID)
			out = &p
		}
		return nil
	})
	return out, err
}

func (r *memoryProfileRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Profile, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryProfileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	return r.filter(func(model.Profile) bool { return true })
}

func (r *memoryProfileRepo) ListByTeamID(ctx context.Context, teamID string) ([]*model.Profile, error) {
	return r.filter(func(p model.Profile) bool { return p.TeamID != nil && *p.TeamID == teamID })
}

func (r *memoryProfileRepo) filter(keep func(model.Profile) bool) ([]*model.Profile, error) {
	var out []*model.Profile
	err := r.v.read(func(st *memoryState) error {
		for _, p := range st.profiles {
			p := p
			if keep(p) {
				p.TeamID = cloneStringPtr(p.TeamID)
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *memoryProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	return r.v.write("profiles.create", func(st *memoryState, now time.Time) error {
		if _, ok := st.identities[profile.ID]; !ok {
			return fmt.Errorf("failed to insert profile: identity %s does not exist", profile.ID)
		}
		if _, ok := st.profiles[profile.ID]; ok {
			return fmt.Errorf("failed to insert profile: duplicate id %s", profile.ID)
		}
		profile.CreatedAt, profile.UpdatedAt = now, now
		p := *profile
		p.TeamID = cloneStringPtr(p.TeamID)
		st.profiles[p.ID] = p
		return nil
	})
}

func (r *memoryProfileRepo) UpdateRole(ctx context.Context, id string, role model.RoleClaims) error {
	return r.update("profiles.update_role", id, func(p *model.Profile) {
		p.IsAdmin = role.IsAdmin
		p.IsTechLead = role.IsTechLead
		p.TeamID = cloneStringPtr(role.TeamID)
	})
}

func (r *memoryProfileRepo) SetTechLead(ctx context.Context, id string, isTechLead bool) error {
	return r.update("profiles.set_tech_lead", id, func(p *model.Profile) {
		p.IsTechLead = isTechLead
	})
}

func (r *memoryProfileRepo) SetTeam(ctx context.Context, id, teamID string) error {
	return r.update("profiles.set_team", id, func(p *model.Profile) {
		p.TeamID = &teamID
	})
}

func (r *memoryProfileRepo) update(op, id string, mutate func(p *model.Profile)) error {
	return r.v.write(op, func(st *memoryState, now time.Time) error {
		p, ok := st.profiles[id]
		if !ok {
			return fmt.Errorf("profile: %w", ErrNotFound)
		}
		mutate(&p)
		p.UpdatedAt = now
		st.profiles[id] = p
		return nil
	})
}

// --- teams ---

type memoryTeamRepo struct{ v *memoryView }

func copyTeam(t model.Team) *model.Team {
	t.AvailableServiceIDs = append([]string(nil), t.AvailableServiceIDs...)
	return &t
}

func (r *memoryTeamRepo) FindByID(ctx context.Context, id string) (*model.Team, error) {
	var out *model.Team
	err := r.v.read(func(st *memoryState) error {
		if t, ok := st.teams[id]; ok {
			out = copyTeam(t)
		}
		return nil
	})
	return out, err
}

func (r *memoryTeamRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Team, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryTeamRepo) List(ctx context.Context) ([]*model.Team, error) {
	var out []*model.Team
	err := r.v.read(func(st *memoryState) error {
		for _, t := range st.teams {
			out = append(out, copyTeam(t))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *memoryTeamRepo) Create(ctx context.Context, team *model.Team) error {
	return r.v.write("teams.create", func(st *memoryState, now time.Time) error {
		if _, ok := st.profiles[team.TechLeadID]; !ok {
			return fmt.Errorf("failed to insert team: tech lead %s does not exist", team.TechLeadID)
		}
		if team.ID == "" {
			team.ID = r.v.store.newID()
		}
		team.AvailableServiceIDs = nonNilStrings(team.AvailableServiceIDs)
		team.CreatedAt, team.UpdatedAt = now, now
		st.teams[team.ID] = *copyTeam(*team)
		return nil
	})
}

func (r *memoryTeamRepo) Update(ctx context.Context, team *model.Team) error {
	return r.v.write("teams.update", func(st *memoryState, now time.Time) error {
		existing, ok := st.teams[team.ID]
		if !ok {
			return fmt.Errorf("team: %w", ErrNotFound)
		}
		if _, ok := st.profiles[team.TechLeadID]; !ok {
			return fmt.Errorf("failed to update team: tech lead %s does not exist", team.TechLeadID)
		}
		existing.Name = team.Name
		existing.TechLeadID = team.TechLeadID
		existing.AvailableServiceIDs = nonNilStrings(append([]string(nil), team.AvailableServiceIDs...))
		existing.UpdatedAt = now
		team.UpdatedAt = now
		st.teams[team.ID] = existing
		return nil
	})
}

func (r *memoryTeamRepo) Delete(ctx context.Context, id string) error {
	return r.v.write("teams.delete", func(st *memoryState, now time.Time) error {
		if _, ok := st.teams[id]; !ok {
			return fmt.Errorf("team: %w", ErrNotFound)
		}
		delete(st.teams, id)
		for cid, c := range st.contacts {
			if c.TeamID != nil && *c.TeamID == id {
				delete(st.contacts, cid)
			}
		}
		return nil
	})
}

// --- services ---

type memoryServiceRepo struct{ v *memoryView }

func (r *memoryServiceRepo) FindByID(ctx context.Context, id string) (*model.Service, error) {
	var out *model.Service
	err := r.v.read(func(st *memoryState) error {
		if s, ok := st.services[id]; ok {
			out = &s
		}
		return nil
	})
	return out, err
}

func (r *memoryServiceRepo) List(ctx context.Context) ([]*model.Service, error) {
	return r.filter(func(model.Service) bool { return true })
}

func (r *memoryServiceRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return r.filter(func(s model.Service) bool {
		_, ok := want[s.ID]
		return ok
	})
}

func (r *memoryServiceRepo) filter(keep func(model.Service) bool) ([]*model.Service, error) {
	var out []*model.Service
	err := r.v.read(func(st *memoryState) error {
		for _, s := range st.services {
			s := s
			if keep(s) {
				out = append(out, &s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *memoryServiceRepo) Create(ctx context.Context, service *model.Service) error {
	return r.v.write("services.create", func(st *memoryState, now time.Time) error {
		if service.ID == "" {
			service.ID = r.v.store.newID()
		}
		service.CreatedAt, service.UpdatedAt = now, now
		st.services[service.ID] = *service
		return nil
	})
}

func (r *memoryServiceRepo) Update(ctx context.Context, service *model.Service) error {
	return r.v.write("services.update", func(st *memoryState, now time.Time) error {
		existing, ok := st.services[service.ID]
		if !ok {
			return fmt.Errorf("service: %w", ErrNotFound)
		}
		existing.Name = service.Name
		existing.Description = service.Description
		existing.UpdatedAt = now
		service.UpdatedAt = now
		st.services[service.ID] = existing
		return nil
	})
}

func (r *memoryServiceRepo) Delete(ctx context.Context, id string) error {
	return r.v.write("services.delete", func(st *memoryState, now time.Time) error {
		if _, ok := st.services[id]; !ok {
			return fmt.Errorf("service: %w", ErrNotFound)
		}
		delete(st.services, id)
		for rid, req := range st.requests {
			if req.ServiceID == id {
				delete(st.requests, rid)
			}
		}
		return nil
	})
}

// --- requests ---

type memoryRequestRepo struct{ v *memoryView }

func withOwner(st *memoryState, req model.AccessRequest) *RequestWithOwner {
	out := &RequestWithOwner{AccessRequest: cloneRequest(req)}
	if p, ok := st.profiles[req.UserID]; ok {
		out.OwnerTeamID = cloneStringPtr(p.TeamID)
	}
	return out
}

func (r *memoryRequestRepo) FindByID(ctx context.Context, id string) (*RequestWithOwner, error) {
	var out *RequestWithOwner
	err := r.v.read(func(st *memoryState) error {
		if req, ok := st.requests[id]; ok {
			out = withOwner(st, req)
		}
		return nil
	})
	return out, err
}

func (r *memoryRequestRepo) FindByIDForUpdate(ctx context.Context, id string) (*RequestWithOwner, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryRequestRepo) List(ctx context.Context, filter RequestFilter) ([]*RequestWithOwner, error) {
	var out []*RequestWithOwner
	err := r.v.read(func(st *memoryState) error {
		for _, req := range st.requests {
			if filter.Status != "" && req.Status != filter.Status {
				continue
			}
			row := withOwner(st, req)
			if filter.UserID != "" || filter.OwnerTeamID != "" {
				byUser := filter.UserID != "" && req.UserID == filter.UserID
				byTeam := filter.OwnerTeamID != "" && row.OwnerTeamID != nil && *row.OwnerTeamID == filter.OwnerTeamID
				if !byUser && !byTeam {
					continue
				}
			}
			out = append(out, row)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *memoryRequestRepo) Create(ctx context.Context, request *model.AccessRequest) error {
	return r.v.write("requests.create", func(st *memoryState, now time.Time) error {
		if _, ok := st.profiles[request.UserID]; !ok {
			return fmt.Errorf("failed to insert request: user %s does not exist", request.UserID)
		}
		if _, ok := st.services[request.ServiceID]; !ok {
			return fmt.Errorf("failed to insert request: service %s does not exist", request.ServiceID)
		}
		for _, existing := range st.requests {
			if existing.UserID == request.UserID && existing.ServiceID == request.ServiceID && existing.Status.IsOpen() {
				return ErrDuplicateOpenRequest
			}
		}
		if request.ID == "" {
			request.ID = r.v.store.newID()
		}
		request.Status = model.RequestStatusPending
		request.RequestedAt = now
		request.ResolvedAt, request.ResolvedBy, request.Notes = nil, nil, nil
		st.requests[request.ID] = cloneRequest(*request)
		return nil
	})
}

func (r *memoryRequestRepo) Resolve(ctx context.Context, id string, status model.RequestStatus, resolvedBy string, notes *string) (*model.AccessRequest, error) {
	var out *model.AccessRequest
	err := r.v.write("requests.resolve", func(st *memoryState, now time.Time) error {
		req, ok := st.requests[id]
		if !ok {
			return fmt.Errorf("request: %w", ErrNotFound)
		}
		req.Status = status
		req.ResolvedAt = &now
		req.ResolvedBy = &resolvedBy
		if notes != nil {
			req.Notes = cloneStringPtr(notes)
		}
		st.requests[id] = cloneRequest(req)
		resolved := cloneRequest(req)
		out = &resolved
		return nil
	})
	return out, err
}

func (r *memoryRequestRepo) Delete(ctx context.Context, id string) error {
	return r.v.write("requests.delete", func(st *memoryState, now time.Time) error {
		if _, ok := st.requests[id]; !ok {
			return fmt.Errorf("request: %w", ErrNotFound)
		}
		delete(st.requests, id)
		return nil
	})
}

// --- contacts ---

type memoryContactRepo struct{ v *memoryView }

func (r *memoryContactRepo) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	var out *model.Contact
	err := r.v.read(func(st *memoryState) error {
		if c, ok := st.contacts[id]; ok {
			c.TeamID = cloneStringPtr(c.TeamID)
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *memoryContactRepo) List(ctx context.Context) ([]*model.Contact, error) {
	return r.filter(func(model.Contact) bool { return true })
}

func (r *memoryContactRepo) ListVisible(ctx context.Context, teamID string) ([]*model.Contact, error) {
	return r.filter(func(c model.Contact) bool {
		return c.TeamID == nil || (teamID != "" && *c.TeamID == teamID)
	})
}

func (r *memoryContactRepo) filter(keep func(model.Contact) bool) ([]*model.Contact, error) {
	var out []*model.Contact
	err := r.v.read(func(st *memoryState) error {
		for _, c := range st.contacts {
			c := c
			if keep(c) {
				c.TeamID = cloneStringPtr(c.TeamID)
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *memoryContactRepo) Create(ctx context.Context, contact *model.Contact) error {
	return r.v.write("contacts.create", func(st *memoryState, now time.Time) error {
		if contact.TeamID != nil {
			if _, ok := st.teams[*contact.TeamID]; !ok {
				return fmt.Errorf("failed to insert contact: team %s does not exist", *contact.TeamID)
			}
		}
		if contact.ID == "" {
			contact.ID = r.v.store.newID()
		}
		contact.CreatedAt, contact.UpdatedAt = now, now
		c := *contact
		c.TeamID = cloneStringPtr(c.TeamID)
		st.contacts[c.ID] = c
		return nil
	})
}

func (r *memoryContactRepo) Update(ctx context.Context, contact *model.Contact) error {
	return r.v.write("contacts.update", func(st *memoryState, now time.Time) error {
		existing, ok := st.contacts[contact.ID]
		if !ok {
			return fmt.Errorf("contact: %w", ErrNotFound)
		}
		if contact.TeamID != nil {
			if _, ok := st.teams[*contact.TeamID]; !ok {
				return fmt.Errorf("failed to update contact: team %s does not exist", *contact.TeamID)
			}
		}
		existing.Name = contact.Name
		existing.URL = contact.URL
		existing.Order = contact.Order
		existing.TeamID = cloneStringPtr(contact.TeamID)
		existing.UpdatedAt = now
		contact.UpdatedAt = now
		st.contacts[contact.ID] = existing
		return nil
	})
}

func (r *memoryContactRepo) Delete(ctx context.Context, id string) error {
	return r.v.write("contacts.delete", func(st *memoryState, now time.Time) error {
		if _, ok := st.contacts[id]; !ok {
			return fmt.Errorf("contact: %w", ErrNotFound)
		}
		delete(st.contacts, id)
		return nil
	})
}

// --- identities ---

type memoryIdentityRepo struct{ v *memoryView }

func copyIdentity(ident model.Identity) *model.Identity {
	ident.Claims.TeamID = cloneStringPtr(ident.Claims.TeamID)
	return &ident
}

func (r *memoryIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	var out *model.Identity
	err := r.v.read(func(st *memoryState) error {
		if ident, ok := st.identities[id]; ok {
			out = copyIdentity(ident)
		}
		return nil
	})
	return out, err
}

func (r *memoryIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	var out *model.Identity
	err := r.v.read(func(st *memoryState) error {
		for _, ident := range st.identities {
			if ident.Provider == provider && ident.ProviderUserID == providerUserID {
				out = copyIdentity(ident)
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *memoryIdentityRepo) List(ctx context.Context) ([]*model.Identity, error) {
	var out []*model.Identity
	err := r.v.read(func(st *memoryState) error {
		for _, ident := range st.identities {
			out = append(out, copyIdentity(ident))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *memoryIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	return r.v.write("identities.create", func(st *memoryState, now time.Time) error {
		if _, ok := st.identities[identity.ID]; ok {
			return fmt.Errorf("failed to insert identity: duplicate id %s", identity.ID)
		}
		for _, ident := range st.identities {
			if ident.Provider == identity.Provider && ident.ProviderUserID == identity.ProviderUserID {
				return fmt.Errorf("failed to insert identity: duplicate provider user %s", identity.ProviderUserID)
			}
		}
		identity.ClaimsUpdatedAt, identity.CreatedAt = now, now
		st.identities[identity.ID] = *copyIdentity(*identity)
		return nil
	})
}

func (r *memoryIdentityRepo) ReplaceClaims(ctx context.Context, id string, claims model.RoleClaims) error {
	return r.v.write("identities.replace_claims", func(st *memoryState, now time.Time) error {
		ident, ok := st.identities[id]
		if !ok {
			return fmt.Errorf("identity: %w", ErrNotFound)
		}
		ident.Claims = claims
		ident.Claims.TeamID = cloneStringPtr(claims.TeamID)
		ident.ClaimsUpdatedAt = now
		st.identities[id] = ident
		return nil
	})
}

// compile-time interface checks
var (
	_ Store              = (*MemoryStore)(nil)
	_ ProfileRepository  = (*memoryProfileRepo)(nil)
	_ TeamRepository     = (*memoryTeamRepo)(nil)
	_ ServiceRepository  = (*memoryServiceRepo)(nil)
	_ RequestRepository  = (*memoryRequestRepo)(nil)
	_ ContactRepository  = (*memoryContactRepo)(nil)
	_ IdentityRepository = (*memoryIdentityRepo)(nil)
)
