package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/noah-isme/course-portal-api/internal/hosting"
	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

type memPeople struct {
	mu     sync.Mutex
	people map[string]models.Person
}

func (m *memPeople) FindByID(ctx context.Context, id string) (*models.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.people[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memPeople) FindByGitHubID(ctx context.Context, githubID string) (*models.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.people {
		if strings.EqualFold(p.GitHubID, githubID) {
			p := p
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memPeople) ListByKind(ctx context.Context, kind models.PersonKind) ([]models.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Person
	for _, p := range m.people {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPeople) Upsert(ctx context.Context, person *models.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[person.ID] = *person
	return nil
}

func (m *memPeople) WithdrawStudentsExcept(ctx context.Context, activeIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := make(map[string]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = struct{}{}
	}
	var n int64
	for id, p := range m.people {
		if _, ok := active[id]; ok || p.Kind != models.PersonKindStudent {
			continue
		}
		p.Kind = models.PersonKindWithdrawn
		m.people[id] = p
		n++
	}
	return n, nil
}

type memDeliverables struct {
	mu    sync.Mutex
	items map[string]models.Deliverable
}

func cloneDeliverable(d models.Deliverable) models.Deliverable {
	if d.Policy.Assignment != nil {
		info := *d.Policy.Assignment
		info.Repositories = append([]string(nil), info.Repositories...)
		d.Policy.Assignment = &info
	}
	return d
}

func (m *memDeliverables) FindByID(ctx context.Context, id string) (*models.Deliverable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.items[id]; ok {
		out := cloneDeliverable(d)
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memDeliverables) UpdatePolicy(ctx context.Context, id string, policy models.DeliverablePolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	d.Policy = policy
	m.items[id] = cloneDeliverable(d)
	return nil
}

type memTeams struct {
	mu    sync.Mutex
	items map[string]models.Team
	// beforeCreate runs ahead of Create's atomic section.
	beforeCreate func()
}

func (m *memTeams) FindByID(ctx context.Context, id string) (*models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.items[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memTeams) ListByDeliverable(ctx context.Context, deliverableID string) ([]models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Team
	for _, t := range m.items {
		if t.DeliverableID == deliverableID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTeams) ListForPerson(ctx context.Context, personID string) ([]models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Team
	for _, t := range m.items {
		if t.HasMember(personID) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTeams) Upsert(ctx context.Context, team *models.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := *team
	t.PersonIDs = append([]string(nil), team.PersonIDs...)
	m.items[team.ID] = t
	return nil
}

func (m *memTeams) Create(ctx context.Context, team *models.Team) error {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.items[team.ID]; taken {
		return appErrors.Clone(appErrors.ErrTeamConflict, "")
	}
	for _, existing := range m.items {
		if existing.DeliverableID != team.DeliverableID {
			continue
		}
		for _, id := range team.PersonIDs {
			if existing.HasMember(id) {
				return appErrors.Clone(appErrors.ErrTeamConflict, "")
			}
		}
	}
	t := *team
	t.PersonIDs = append([]string(nil), team.PersonIDs...)
	if t.Status == "" {
		t.Status = models.TeamNotProvisioned
	}
	m.items[team.ID] = t
	return nil
}

func (m *memTeams) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

type memRepos struct {
	mu     sync.Mutex
	items  map[string]models.Repository
	teams  *memTeams
	writes int
}

func (m *memRepos) FindByID(ctx context.Context, id string) (*models.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.items[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memRepos) ListByDeliverable(ctx context.Context, deliverableID string) ([]models.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Repository
	for _, r := range m.items {
		if r.DeliverableID == deliverableID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepos) ListForPerson(ctx context.Context, personID string) ([]models.Repository, error) {
	teams, _ := m.teams.ListForPerson(ctx, personID)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Repository
	for _, r := range m.items {
		for _, t := range teams {
			if r.HasTeam(t.ID) {
				out = append(out, r)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepos) Upsert(ctx context.Context, repo *models.Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *repo
	r.TeamIDs = append([]string(nil), repo.TeamIDs...)
	m.items[repo.ID] = r
	m.writes++
	return nil
}

func (m *memRepos) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func (m *memRepos) snapshot(id string) models.Repository {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

type memGrades struct {
	mu    sync.Mutex
	items map[string]models.Grade
}

func gradeKey(personID, deliverableID string) string {
	return personID + "|" + deliverableID
}

func (m *memGrades) Find(ctx context.Context, personID, deliverableID string) (*models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.items[gradeKey(personID, deliverableID)]; ok {
		return &g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memGrades) ListForPerson(ctx context.Context, personID string) ([]models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Grade
	for _, g := range m.items {
		if g.PersonID == personID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeliverableID < out[j].DeliverableID })
	return out, nil
}

func (m *memGrades) Upsert(ctx context.Context, grade *models.Grade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[gradeKey(grade.PersonID, grade.DeliverableID)] = *grade
	return nil
}

type memStore struct {
	people       *memPeople
	deliverables *memDeliverables
	teams        *memTeams
	repos        *memRepos
	grades       *memGrades
}

func newMemStore() *memStore {
	teams := &memTeams{items: map[string]models.Team{}}
	return &memStore{
		people:       &memPeople{people: map[string]models.Person{}},
		deliverables: &memDeliverables{items: map[string]models.Deliverable{}},
		teams:        teams,
		repos:        &memRepos{items: map[string]models.Repository{}, teams: teams},
		grades:       &memGrades{items: map[string]models.Grade{}},
	}
}

func (s *memStore) facts() FactStore {
	return FactStore{
		People:       s.people,
		Deliverables: s.deliverables,
		Teams:        s.teams,
		Repos:        s.repos,
		Grades:       s.grades,
	}
}

func (s *memStore) addStudent(id string) {
	lab := "L1A"
	s.people.people[id] = models.Person{ID: id, GitHubID: id, Kind: models.PersonKindStudent, LabID: &lab}
}

func (s *memStore) addDeliverable(d models.Deliverable) {
	s.deliverables.items[d.ID] = cloneDeliverable(d)
}

func (s *memStore) setGrade(personID, deliverableID string, score float64) {
	s.grades.items[gradeKey(personID, deliverableID)] = models.Grade{
		PersonID:      personID,
		DeliverableID: deliverableID,
		Score:         &score,
		Source:        models.GradeSourceStaff,
	}
}

type fakeHostedRepo struct {
	teams   map[string]hosting.Permission
	hooks   []string
	commits bool
}

type fakeHostedTeam struct {
	number  int64
	members []string
}

var errFakeHosting = errors.New("hosting unavailable")

// fakeGateway is an in-memory repository host. failAlways and failOnce are
// keyed by "Call" or "Call:target".
type fakeGateway struct {
	mu         sync.Mutex
	repos      map[string]*fakeHostedRepo
	teams      map[string]*fakeHostedTeam
	orgMembers []string
	nextTeam   int64
	calls      map[string]int
	failAlways map[string]error
	failOnce   map[string]error
	// staleTeams plays a team number cache entry that outlived its team.
	staleTeams map[string]int64
}

func newFakeGateway(members ...string) *fakeGateway {
	return &fakeGateway{
		repos:      map[string]*fakeHostedRepo{},
		teams:      map[string]*fakeHostedTeam{},
		orgMembers: members,
		nextTeam:   100,
		calls:      map[string]int{},
		failAlways: map[string]error{},
		failOnce:   map[string]error{},
	}
}

func (g *fakeGateway) count(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[call]
}

func (g *fakeGateway) addOrgMember(handle string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orgMembers = append(g.orgMembers, handle)
}

// enter records a call and returns an injected failure; callers hold g.mu.
func (g *fakeGateway) enter(call, target string) error {
	g.calls[call]++
	for _, key := range []string{call + ":" + target, call} {
		if err, ok := g.failOnce[key]; ok {
			delete(g.failOnce, key)
			return err
		}
		if err, ok := g.failAlways[key]; ok {
			return err
		}
	}
	return nil
}

func (g *fakeGateway) Org() string                    { return "course" }
func (g *fakeGateway) RepoURL(repoName string) string { return "https://github.com/course/" + repoName }
func (g *fakeGateway) TeamURL(teamName string) string {
	return "https://github.com/orgs/course/teams/" + teamName
}
func (g *fakeGateway) WebhookURL() string   { return "https://portal.example/githubWebhook" }
func (g *fakeGateway) StaffTeams() []string { return []string{"staff", "admin"} }

func (g *fakeGateway) RepoExists(ctx context.Context, repoName string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("RepoExists", repoName); err != nil {
		return false, err
	}
	_, ok := g.repos[repoName]
	return ok, nil
}

func (g *fakeGateway) CreateRepo(ctx context.Context, repoName string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateRepo", repoName); err != nil {
		return "", err
	}
	if _, ok := g.repos[repoName]; ok {
		return "", errors.New("repository already exists")
	}
	g.repos[repoName] = &fakeHostedRepo{teams: map[string]hosting.Permission{}}
	return g.RepoURL(repoName), nil
}

func (g *fakeGateway) DeleteRepo(ctx context.Context, repoName string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteRepo", repoName); err != nil {
		return false, err
	}
	_, ok := g.repos[repoName]
	delete(g.repos, repoName)
	return ok, nil
}

func (g *fakeGateway) RepoHasCommits(ctx context.Context, repoName string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("RepoHasCommits", repoName); err != nil {
		return false, err
	}
	r, ok := g.repos[repoName]
	return ok && r.commits, nil
}

func (g *fakeGateway) TeamNumber(ctx context.Context, teamName string) (int64, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("TeamNumber", teamName); err != nil {
		return 0, false, err
	}
	if t, ok := g.teams[teamName]; ok {
		return t.number, true, nil
	}
	if number, ok := g.staleTeams[teamName]; ok {
		return number, true, nil
	}
	return 0, false, nil
}

func (g *fakeGateway) CreateTeam(ctx context.Context, teamName string, permission hosting.Permission) (hosting.TeamRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateTeam", teamName); err != nil {
		return hosting.TeamRef{}, err
	}
	if _, ok := g.teams[teamName]; ok {
		return hosting.TeamRef{}, errors.New("team already exists")
	}
	g.nextTeam++
	g.teams[teamName] = &fakeHostedTeam{number: g.nextTeam}
	return hosting.TeamRef{Name: teamName, Number: g.nextTeam}, nil
}

func (g *fakeGateway) DeleteTeam(ctx context.Context, teamName string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteTeam", teamName); err != nil {
		return false, err
	}
	_, ok := g.teams[teamName]
	delete(g.teams, teamName)
	return ok, nil
}

func (g *fakeGateway) ListTeamMembers(ctx context.Context, teamName string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ListTeamMembers", teamName); err != nil {
		return nil, err
	}
	if t, ok := g.teams[teamName]; ok {
		return append([]string(nil), t.members...), nil
	}
	if _, ok := g.staleTeams[teamName]; ok {
		delete(g.staleTeams, teamName)
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teams.list_members: not found on host")
	}
	return nil, nil
}

func (g *fakeGateway) AddMembersToTeam(ctx context.Context, teamName string, members []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("AddMembersToTeam", teamName); err != nil {
		return err
	}
	t, ok := g.teams[teamName]
	if !ok {
		return errors.New("team not found")
	}
	t.members = append(t.members, members...)
	return nil
}

func (g *fakeGateway) ListRepoTeams(ctx context.Context, repoName string) ([]hosting.TeamAccess, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ListRepoTeams", repoName); err != nil {
		return nil, err
	}
	r, ok := g.repos[repoName]
	if !ok {
		return nil, nil
	}
	var out []hosting.TeamAccess
	for name, perm := range r.teams {
		out = append(out, hosting.TeamAccess{Name: name, Slug: name, Permission: perm})
	}
	return out, nil
}

func (g *fakeGateway) AddTeamToRepo(ctx context.Context, teamName, repoName string, permission hosting.Permission) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("AddTeamToRepo", repoName); err != nil {
		return err
	}
	r, ok := g.repos[repoName]
	if !ok {
		return errors.New("repository not found")
	}
	r.teams[teamName] = permission
	return nil
}

func (g *fakeGateway) SetRepoPermission(ctx context.Context, repoName string, permission hosting.Permission) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("SetRepoPermission", repoName); err != nil {
		return err
	}
	r, ok := g.repos[repoName]
	if !ok {
		return errors.New("repository not found")
	}
	for name, perm := range r.teams {
		if perm != hosting.PermissionAdmin {
			r.teams[name] = permission
		}
	}
	return nil
}

func (g *fakeGateway) ListWebhooks(ctx context.Context, repoName string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ListWebhooks", repoName); err != nil {
		return nil, err
	}
	if r, ok := g.repos[repoName]; ok {
		return append([]string(nil), r.hooks...), nil
	}
	return nil, nil
}

func (g *fakeGateway) AddWebhook(ctx context.Context, repoName, endpoint string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("AddWebhook", repoName); err != nil {
		return err
	}
	r, ok := g.repos[repoName]
	if !ok {
		return errors.New("repository not found")
	}
	r.hooks = append(r.hooks, endpoint)
	return nil
}

func (g *fakeGateway) ListOrgMembers(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ListOrgMembers", ""); err != nil {
		return nil, err
	}
	return append([]string(nil), g.orgMembers...), nil
}

func (g *fakeGateway) ImportRepoFS(ctx context.Context, sourceURL, repoName, seedPath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ImportRepoFS", repoName); err != nil {
		return err
	}
	r, ok := g.repos[repoName]
	if !ok {
		return errors.New("repository not found")
	}
	r.commits = true
	return nil
}

func (g *fakeGateway) permission(repoName, teamName string) (hosting.Permission, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.repos[repoName]
	if !ok {
		return "", false
	}
	perm, ok := r.teams[teamName]
	return perm, ok
}

func ptrFloat(v float64) *float64 {
	return &v
}
