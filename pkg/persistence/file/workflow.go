package file

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

const (
	workflowsDir = "workflows"
	versionsDir  = "versions"
)

// WorkflowRepository stores workflows and their versions as JSON files.
type WorkflowRepository struct {
	store *Persistence
}

func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.workflowByIDLocked(id)
}

func (r *WorkflowRepository) workflowByIDLocked(id string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := r.store.read(workflowsDir, id, &workflow, persistence.ErrWorkflowNotFound)
	if err != nil {
		return nil, err
	}

	if workflow.DeletedAt != nil {
		return nil, persistence.ErrWorkflowNotFound
	}

	return &workflow, nil
}

func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(workflowsDir, workflow.ID, workflow)
}

func (r *WorkflowRepository) ActiveWorkflows(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var workflows []*models.Workflow

	err := r.store.readAll(workflowsDir, func(payload []byte) error {
		var workflow models.Workflow

		err := json.Unmarshal(payload, &workflow)
		if err != nil {
			return err
		}

		if workflow.DeletedAt == nil && workflow.IsActive() && workflow.TriggerType == triggerType {
			workflows = append(workflows, &workflow)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) VersionByID(ctx context.Context, id string) (*models.WorkflowVersion, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.versionByIDLocked(id)
}

func (r *WorkflowRepository) versionByIDLocked(id string) (*models.WorkflowVersion, error) {
	var version models.WorkflowVersion

	err := r.store.read(versionsDir, id, &version, persistence.ErrVersionNotFound)
	if err != nil {
		return nil, err
	}

	return &version, nil
}

func (r *WorkflowRepository) ActiveVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	versions, err := r.versionsByWorkflowLocked(workflowID)
	if err != nil {
		return nil, err
	}

	for _, version := range versions {
		if version.IsActive {
			return version, nil
		}
	}

	return nil, persistence.ErrNoActiveVersion
}

func (r *WorkflowRepository) LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	versions, err := r.versionsByWorkflowLocked(workflowID)
	if err != nil {
		return nil, err
	}

	if len(versions) == 0 {
		return nil, persistence.ErrVersionNotFound
	}

	return versions[len(versions)-1], nil
}

func (r *WorkflowRepository) versionsByWorkflowLocked(workflowID string) ([]*models.WorkflowVersion, error) {
	var versions []*models.WorkflowVersion

	err := r.store.readAll(versionsDir, func(payload []byte) error {
		var version models.WorkflowVersion

		err := json.Unmarshal(payload, &version)
		if err != nil {
			return err
		}

		if version.WorkflowID == workflowID && version.DeletedAt == nil {
			versions = append(versions, &version)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].CreatedAt.Before(versions[j].CreatedAt)
	})

	return versions, nil
}

func (r *WorkflowRepository) SaveVersion(ctx context.Context, version *models.WorkflowVersion) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(versionsDir, version.ID, version)
}

func (r *WorkflowRepository) ActivateVersion(ctx context.Context, workflowID, versionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	target, err := r.versionByIDLocked(versionID)
	if err != nil {
		return err
	}

	versions, err := r.versionsByWorkflowLocked(workflowID)
	if err != nil {
		return err
	}

	for _, version := range versions {
		wasActive := version.IsActive
		version.IsActive = version.ID == versionID

		if version.IsActive != wasActive {
			err = r.store.write(versionsDir, version.ID, version)
			if err != nil {
				return err
			}
		}
	}

	workflow, err := r.workflowByIDLocked(workflowID)
	if err != nil {
		return err
	}

	workflow.ActiveVersionID = target.ID

	return r.store.write(workflowsDir, workflow.ID, workflow)
}
