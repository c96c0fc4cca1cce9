package service

import (
	"context"

	"github.com/noah-isme/course-portal-api/internal/hosting"
	"github.com/noah-isme/course-portal-api/internal/models"
)

type personStore interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
	FindByGitHubID(ctx context.Context, githubID string) (*models.Person, error)
	ListByKind(ctx context.Context, kind models.PersonKind) ([]models.Person, error)
	Upsert(ctx context.Context, person *models.Person) error
}

type deliverableStore interface {
	FindByID(ctx context.Context, id string) (*models.Deliverable, error)
	UpdatePolicy(ctx context.Context, id string, policy models.DeliverablePolicy) error
}

type teamStore interface {
	FindByID(ctx context.Context, id string) (*models.Team, error)
	ListByDeliverable(ctx context.Context, deliverableID string) ([]models.Team, error)
	ListForPerson(ctx context.Context, personID string) ([]models.Team, error)
	Upsert(ctx context.Context, team *models.Team) error
	// Create inserts a new team, failing with a retryable conflict when the
	// id is taken or a member already has a team for the deliverable.
	Create(ctx context.Context, team *models.Team) error
	Delete(ctx context.Context, id string) error
}

type repoStore interface {
	FindByID(ctx context.Context, id string) (*models.Repository, error)
	ListByDeliverable(ctx context.Context, deliverableID string) ([]models.Repository, error)
	ListForPerson(ctx context.Context, personID string) ([]models.Repository, error)
	Upsert(ctx context.Context, repo *models.Repository) error
	Delete(ctx context.Context, id string) error
}

type gradeStore interface {
	Find(ctx context.Context, personID, deliverableID string) (*models.Grade, error)
	ListForPerson(ctx context.Context, personID string) ([]models.Grade, error)
	Upsert(ctx context.Context, grade *models.Grade) error
}

// FactStore groups the authoritative record stores.
type FactStore struct {
	People       personStore
	Deliverables deliverableStore
	Teams        teamStore
	Repos        repoStore
	Grades       gradeStore
}

// HostingGateway is the capability surface of the repository host. Every
// creating call is preceded by an existence check by its callers.
type HostingGateway interface {
	Org() string
	RepoURL(repoName string) string
	TeamURL(teamName string) string
	WebhookURL() string
	StaffTeams() []string

	RepoExists(ctx context.Context, repoName string) (bool, error)
	CreateRepo(ctx context.Context, repoName string) (string, error)
	DeleteRepo(ctx context.Context, repoName string) (bool, error)
	RepoHasCommits(ctx context.Context, repoName string) (bool, error)

	TeamNumber(ctx context.Context, teamName string) (int64, bool, error)
	CreateTeam(ctx context.Context, teamName string, permission hosting.Permission) (hosting.TeamRef, error)
	DeleteTeam(ctx context.Context, teamName string) (bool, error)
	ListTeamMembers(ctx context.Context, teamName string) ([]string, error)
	AddMembersToTeam(ctx context.Context, teamName string, members []string) error

	ListRepoTeams(ctx context.Context, repoName string) ([]hosting.TeamAccess, error)
	AddTeamToRepo(ctx context.Context, teamName, repoName string, permission hosting.Permission) error
	SetRepoPermission(ctx context.Context, repoName string, permission hosting.Permission) error

	ListWebhooks(ctx context.Context, repoName string) ([]string, error)
	AddWebhook(ctx context.Context, repoName, endpoint string) error

	ListOrgMembers(ctx context.Context) ([]string, error)
	ImportRepoFS(ctx context.Context, sourceURL, repoName, seedPath string) error
}

type provisioningObserver interface {
	RecordProvisioning(operation, outcome string)
	RecordBatchSubject(operation, outcome string)
	SetAssignmentStatus(deliverableID string, status models.AssignmentStatus)
}

type noopObserver struct{}

func (noopObserver) RecordProvisioning(string, string) {}
func (noopObserver) RecordBatchSubject(string, string) {}
func (noopObserver) SetAssignmentStatus(string, models.AssignmentStatus) {}
