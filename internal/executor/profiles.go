package executor

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codecommand/codecommand/internal/task/models"
)

// Profile overrides the built-in command lines for one executor kind.
// FollowupCommand may contain a {session_id} placeholder which is
// replaced with the recorded session id at spawn time.
type Profile struct {
	Command         string `yaml:"command"`
	FollowupCommand string `yaml:"followup_command"`
}

// Profiles maps executor kinds to their command overrides. Deployments
// use this to pin agent versions or swap npx for a global install.
type Profiles map[models.ExecutorKind]Profile

// LoadProfiles reads an optional profiles file. A missing file is not an
// error; it means every driver runs its built-in command.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read executor profiles: %w", err)
	}

	var file struct {
		Executors map[string]Profile `yaml:"executors"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse executor profiles: %w", err)
	}

	profiles := make(Profiles, len(file.Executors))
	for name, profile := range file.Executors {
		kind, err := models.ParseExecutorKind(name)
		if err != nil {
			return nil, fmt.Errorf("executor profiles: %w", err)
		}
		profiles[kind] = profile
	}
	return profiles, nil
}

// CommandFor returns the fresh-run override for kind, or "" when the
// built-in command should be used.
func (p Profiles) CommandFor(kind models.ExecutorKind) string {
	return p[kind].Command
}

// FollowupCommandFor returns the follow-up override for kind with the
// session id substituted, or "" when the built-in command should be used.
func (p Profiles) FollowupCommandFor(kind models.ExecutorKind, sessionID string) string {
	cmd := p[kind].FollowupCommand
	if cmd == "" {
		return ""
	}
	return strings.ReplaceAll(cmd, "{session_id}", sessionID)
}
