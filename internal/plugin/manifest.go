package plugin

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is one command definition read from <root>/<category>/<name>.yaml.
type Manifest struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Cooldown    *int

	Owner    bool
	Admin    bool
	BotAdmin bool
	Group    bool
	Private  bool
	Wait     bool

	Entrypoint string
	Timeout    time.Duration
	Config     map[string]any
}

// rawManifest accepts every spelling seen in older command files. Pointer
// fields tell "absent" apart from "false".
type rawManifest struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Aliases []string `yaml:"aliases"`
	Alias   []string `yaml:"alias"`

	Description string `yaml:"description"`
	Help        string `yaml:"help"`
	Desc        string `yaml:"desc"`
	Usage       string `yaml:"usage"`
	Cooldown    *int   `yaml:"cooldown"`

	Owner      *bool `yaml:"owner"`
	IsOwner    *bool `yaml:"is_owner"`
	OwnerCamel *bool `yaml:"isOwner"`
	Admin      *bool `yaml:"admin"`
	IsAdmin    *bool `yaml:"is_admin"`
	AdminCamel *bool `yaml:"isAdmin"`
	BotAdmin   *bool `yaml:"bot_admin"`
	BotAdminC  *bool `yaml:"botAdmin"`
	IsBotAdmin *bool `yaml:"isBotAdmin"`
	Group      *bool `yaml:"group"`
	IsGroup    *bool `yaml:"is_group"`
	Private    *bool `yaml:"private"`
	IsPrivate  *bool `yaml:"is_private"`
	Wait       bool  `yaml:"wait"`

	Entrypoint string         `yaml:"entrypoint"`
	Timeout    time.Duration  `yaml:"timeout"`
	Config     map[string]any `yaml:"config"`
}

// UnmarshalYAML folds legacy field names into the canonical ones.
func (m *Manifest) UnmarshalYAML(n *yaml.Node) error {
	var raw rawManifest
	if err := n.Decode(&raw); err != nil {
		return err
	}

	*m = Manifest{
		Name:        firstNonEmpty(raw.Name, raw.Command),
		Aliases:     append(append([]string{}, raw.Aliases...), raw.Alias...),
		Description: firstNonEmpty(raw.Description, raw.Help, raw.Desc),
		Usage:       strings.TrimSpace(raw.Usage),
		Cooldown:    raw.Cooldown,
		Owner:       firstSet(raw.Owner, raw.IsOwner, raw.OwnerCamel),
		Admin:       firstSet(raw.Admin, raw.IsAdmin, raw.AdminCamel),
		BotAdmin:    firstSet(raw.BotAdmin, raw.BotAdminC, raw.IsBotAdmin),
		Group:       firstSet(raw.Group, raw.IsGroup),
		Private:     firstSet(raw.Private, raw.IsPrivate),
		Wait:        raw.Wait,
		Entrypoint:  strings.TrimSpace(raw.Entrypoint),
		Timeout:     raw.Timeout,
		Config:      raw.Config,
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstSet(vals ...*bool) bool {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return false
}

// validateManifest checks required manifest fields.
func validateManifest(m *Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(m.Name, " \t\n") {
		return fmt.Errorf("name %q must be a single word", m.Name)
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	if filepath.IsAbs(m.Entrypoint) {
		return fmt.Errorf("entrypoint must be relative to the category directory: %s", m.Entrypoint)
	}
	if strings.Contains(m.Entrypoint, "..") {
		return fmt.Errorf("entrypoint contains path traversal: %s", m.Entrypoint)
	}
	if m.Cooldown != nil && *m.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	if m.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if m.Group && m.Private {
		return fmt.Errorf("group and private are mutually exclusive")
	}
	return nil
}
