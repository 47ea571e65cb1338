package dto

import (
	"github.com/codecommand/codecommand/internal/task/models"
	"github.com/codecommand/codecommand/internal/task/service"
)

// FromProject converts a project model to its DTO.
func FromProject(p *models.Project) ProjectDTO {
	return ProjectDTO{
		ID:          p.ID,
		Name:        p.Name,
		GitRepoPath: p.GitRepoPath,
		SetupScript: p.SetupScript,
		DevScript:   p.DevScript,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// FromProjects converts a project list.
func FromProjects(projects []*models.Project) []ProjectDTO {
	out := make([]ProjectDTO, 0, len(projects))
	for _, p := range projects {
		out = append(out, FromProject(p))
	}
	return out
}

// FromTask converts a task model to its DTO.
func FromTask(t *models.Task) TaskDTO {
	return TaskDTO{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// FromTasks converts a task list.
func FromTasks(tasks []*models.Task) []TaskDTO {
	out := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, FromTask(t))
	}
	return out
}

// FromAttempt converts an attempt model to its DTO.
func FromAttempt(a *models.TaskAttempt) AttemptDTO {
	return AttemptDTO{
		ID:           a.ID,
		TaskID:       a.TaskID,
		Branch:       a.Branch,
		WorktreePath: a.WorktreePath,
		Executor:     string(a.Executor),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// FromAttempts converts an attempt list.
func FromAttempts(attempts []*models.TaskAttempt) []AttemptDTO {
	out := make([]AttemptDTO, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, FromAttempt(a))
	}
	return out
}

// FromProcess converts an execution process model to its DTO.
func FromProcess(p *models.ExecutionProcess) ProcessDTO {
	return ProcessDTO{
		ID:            p.ID,
		TaskAttemptID: p.TaskAttemptID,
		Kind:          string(p.Kind),
		Status:        string(p.Status),
		ExitCode:      p.ExitCode,
		Stdout:        p.Stdout,
		Stderr:        p.Stderr,
		StartedAt:     p.StartedAt,
		CompletedAt:   p.CompletedAt,
	}
}

// FromProcesses converts a process list.
func FromProcesses(processes []*models.ExecutionProcess) []ProcessDTO {
	out := make([]ProcessDTO, 0, len(processes))
	for _, p := range processes {
		out = append(out, FromProcess(p))
	}
	return out
}

// FromActivity converts an activity model to its DTO.
func FromActivity(a *models.TaskAttemptActivity) ActivityDTO {
	return ActivityDTO{
		ID:            a.ID,
		TaskAttemptID: a.TaskAttemptID,
		Kind:          a.Kind,
		Payload:       a.Payload,
		CreatedAt:     a.CreatedAt,
	}
}

// FromActivities converts an activity list.
func FromActivities(activities []*models.TaskAttemptActivity) []ActivityDTO {
	out := make([]ActivityDTO, 0, len(activities))
	for _, a := range activities {
		out = append(out, FromActivity(a))
	}
	return out
}

// FromSettings converts service settings to their DTO.
func FromSettings(s service.Settings) SettingsDTO {
	return SettingsDTO{
		DefaultExecutor:   s.DefaultExecutor,
		SoundAlerts:       s.SoundAlerts,
		PushNotifications: s.PushNotifications,
		SoundFile:         s.SoundFile,
		AnalyticsEnabled:  s.AnalyticsEnabled,
		AnalyticsUserID:   s.AnalyticsUserID,
		GitHubUsername:    s.GitHubUsername,
		GitHubEmail:       s.GitHubEmail,
		EditorType:        s.EditorType,
		EditorCommand:     s.EditorCommand,
	}
}

// ToSettings converts a settings DTO to the service type.
func ToSettings(s SettingsDTO) service.Settings {
	return service.Settings{
		DefaultExecutor:   s.DefaultExecutor,
		SoundAlerts:       s.SoundAlerts,
		PushNotifications: s.PushNotifications,
		SoundFile:         s.SoundFile,
		AnalyticsEnabled:  s.AnalyticsEnabled,
		AnalyticsUserID:   s.AnalyticsUserID,
		GitHubUsername:    s.GitHubUsername,
		GitHubEmail:       s.GitHubEmail,
		EditorType:        s.EditorType,
		EditorCommand:     s.EditorCommand,
	}
}
