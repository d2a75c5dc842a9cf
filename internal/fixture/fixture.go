// Package fixture loads project trees described in YAML.
//
//	workspace: acme
//	projects:
//	  - key: CORE
//	    name: Core platform
//	    status: active
//	    milestones:
//	      - title: Launch
//	        epics:
//	          - title: Checkout
//	            items:
//	              - type: story
//	                title: Cart
//	                points: 3
//	                subtasks:
//	                  - title: Totals
//	    epics: []   # epics without a milestone
//	    items: []   # work items outside any epic
package fixture

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/satyaki-up/matorral/internal/issues"
)

// ImportActor is recorded in the audit log for statuses set by an import.
const ImportActor = "import"

type File struct {
	Workspace string    `yaml:"workspace"`
	Projects  []Project `yaml:"projects"`
}

type Project struct {
	Key        string      `yaml:"key"`
	Name       string      `yaml:"name"`
	Status     string      `yaml:"status"`
	Milestones []Milestone `yaml:"milestones"`
	Epics      []Epic      `yaml:"epics"`
	Items      []Item      `yaml:"items"`
}

type Milestone struct {
	Title    string `yaml:"title"`
	Status   string `yaml:"status"`
	Priority string `yaml:"priority"`
	Epics    []Epic `yaml:"epics"`
}

type Epic struct {
	Title    string `yaml:"title"`
	Status   string `yaml:"status"`
	Priority string `yaml:"priority"`
	Points   *int   `yaml:"points"`
	Items    []Item `yaml:"items"`
}

type Item struct {
	Type     string    `yaml:"type"`
	Title    string    `yaml:"title"`
	Status   string    `yaml:"status"`
	Priority string    `yaml:"priority"`
	Points   *int      `yaml:"points"`
	Subtasks []Subtask `yaml:"subtasks"`
}

type Subtask struct {
	Title  string `yaml:"title"`
	Status string `yaml:"status"`
}

// Summary counts what an import created.
type Summary struct {
	Workspace  *issues.Workspace `json:"workspace"`
	Projects   []*issues.Project `json:"projects"`
	Milestones int               `json:"milestones"`
	Epics      int               `json:"epics"`
	Items      int               `json:"items"`
	Subtasks   int               `json:"subtasks"`
}

func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: parse fixture: %v", issues.ErrInvalidInput, err)
	}
	return &f, nil
}

func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Parse(fh)
}

// Import creates everything f describes. defaultWorkspace is used when the
// file names none; the workspace is created if missing. Import stops at the
// first error and leaves what it already created in place.
func Import(ctx context.Context, svc *issues.Service, f *File, defaultWorkspace string) (*Summary, error) {
	slug := f.Workspace
	if slug == "" {
		slug = defaultWorkspace
	}
	ws, err := svc.EnsureWorkspace(ctx, slug)
	if err != nil {
		return nil, err
	}
	im := &importer{svc: svc, sum: &Summary{Workspace: ws}}
	for _, p := range f.Projects {
		if err := im.project(ctx, ws.ID, p); err != nil {
			return im.sum, fmt.Errorf("project %s: %w", p.Key, err)
		}
	}
	return im.sum, nil
}

type importer struct {
	svc *issues.Service
	sum *Summary
}

func (im *importer) project(ctx context.Context, workspaceID int64, p Project) error {
	project, err := im.svc.CreateProject(ctx, workspaceID, p.Key, p.Name)
	if err != nil {
		return err
	}
	if p.Status != "" && p.Status != string(issues.ProjectDraft) {
		updated, err := im.svc.SetStatus(ctx, project.Ref(), p.Status, ImportActor)
		if err != nil {
			return err
		}
		project = updated.(*issues.Project)
	}
	im.sum.Projects = append(im.sum.Projects, project)

	for _, m := range p.Milestones {
		milestone, err := im.svc.CreateMilestone(ctx, issues.NewMilestone{
			ProjectID: project.ID,
			Title:     m.Title,
			Status:    issues.IssueStatus(m.Status),
			Priority:  issues.Priority(m.Priority),
		})
		if err != nil {
			return fmt.Errorf("milestone %q: %w", m.Title, err)
		}
		im.sum.Milestones++
		for _, e := range m.Epics {
			if err := im.epic(ctx, project.ID, &milestone.ID, e); err != nil {
				return err
			}
		}
	}
	for _, e := range p.Epics {
		if err := im.epic(ctx, project.ID, nil, e); err != nil {
			return err
		}
	}
	for _, it := range p.Items {
		if err := im.item(ctx, project.ID, nil, it); err != nil {
			return err
		}
	}
	return nil
}

func (im *importer) epic(ctx context.Context, projectID int64, milestoneID *int64, e Epic) error {
	epic, err := im.svc.CreateIssue(ctx, issues.NewIssue{
		ProjectID:       projectID,
		Type:            issues.KindEpic,
		Title:           e.Title,
		Status:          issues.IssueStatus(e.Status),
		Priority:        issues.Priority(e.Priority),
		EstimatedPoints: e.Points,
		MilestoneID:     milestoneID,
	})
	if err != nil {
		return fmt.Errorf("epic %q: %w", e.Title, err)
	}
	im.sum.Epics++
	for _, it := range e.Items {
		if err := im.item(ctx, projectID, &epic.ID, it); err != nil {
			return err
		}
	}
	return nil
}

func (im *importer) item(ctx context.Context, projectID int64, parentID *int64, it Item) error {
	kind := issues.Kind(it.Type)
	if kind == "" {
		kind = issues.KindStory
	}
	if !kind.IsWorkItem() {
		return fmt.Errorf("%w: item %q: type must be story, bug or chore", issues.ErrInvalidInput, it.Title)
	}
	issue, err := im.svc.CreateIssue(ctx, issues.NewIssue{
		ProjectID:       projectID,
		Type:            kind,
		Title:           it.Title,
		Status:          issues.IssueStatus(it.Status),
		Priority:        issues.Priority(it.Priority),
		EstimatedPoints: it.Points,
		ParentID:        parentID,
	})
	if err != nil {
		return fmt.Errorf("%s %q: %w", kind, it.Title, err)
	}
	im.sum.Items++

	parent, _ := issue.AsParent()
	for _, st := range it.Subtasks {
		if _, err := im.svc.CreateSubtask(ctx, parent, st.Title, issues.SubtaskStatus(st.Status)); err != nil {
			return fmt.Errorf("subtask %q: %w", st.Title, err)
		}
		im.sum.Subtasks++
	}
	return nil
}
