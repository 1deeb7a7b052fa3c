package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/micro-ha/srun-guard/internal/model"
)

// ProfilesFile is the YAML document accepted by SRUN_PROFILES_FILE.
type ProfilesFile struct {
	Profiles map[string]ProfileSpec `yaml:"profiles"`
}

// ProfileSpec is one profile entry. Base names a preset whose values are
// used for every field the entry leaves out.
type ProfileSpec struct {
	Base                string       `yaml:"base"`
	StatusURL           string       `yaml:"status_url"`
	LoginURL            string       `yaml:"login_url"`
	ACID                string       `yaml:"ac_id"`
	LoginParams         *orderedMap  `yaml:"login_params"`
	LogoutParams        *orderedMap  `yaml:"logout_params"`
	LogoutSendsUsername *bool        `yaml:"logout_sends_username"`
	StatusJSONP         *bool        `yaml:"status_jsonp"`
	StatusTimeout       yamlDuration `yaml:"status_timeout"`
	AuthTimeout         yamlDuration `yaml:"auth_timeout"`
}

// orderedMap decodes a YAML mapping without losing key order.
type orderedMap struct {
	params model.Params
}

func (m *orderedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: params must be a mapping", node.Line)
	}
	params := make(model.Params, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: param %q must be a scalar", value.Line, key.Value)
		}
		params = append(params, model.Param{Key: key.Value, Value: value.Value})
	}
	m.params = params
	return nil
}

type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(node *yaml.Node) error {
	value, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = yamlDuration(value)
	return nil
}

// LoadProfiles reads a profile file and resolves every entry against the
// built-in presets.
func LoadProfiles(path string) ([]model.EndpointProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes a profile document.
func ParseProfiles(data []byte) ([]model.EndpointProfile, error) {
	var file ProfilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profiles yaml: %w", err)
	}

	presets := Presets()
	out := make([]model.EndpointProfile, 0, len(file.Profiles))
	for name, spec := range file.Profiles {
		profile, err := spec.resolve(name, presets)
		if err != nil {
			return nil, err
		}
		out = append(out, profile)
	}
	return out, nil
}

func (s ProfileSpec) resolve(name string, presets map[string]model.EndpointProfile) (model.EndpointProfile, error) {
	var profile model.EndpointProfile
	if s.Base != "" {
		base, ok := presets[s.Base]
		if !ok {
			return model.EndpointProfile{}, fmt.Errorf("profile %q: unknown base %q", name, s.Base)
		}
		profile = base.Clone()
	}
	profile.Name = name

	if s.StatusURL != "" {
		profile.StatusURL = s.StatusURL
	}
	if s.LoginURL != "" {
		profile.LoginURL = s.LoginURL
	}
	if s.ACID != "" {
		profile.ACID = s.ACID
	}
	if s.LoginParams != nil {
		profile.LoginParams = s.LoginParams.params
	}
	if s.LogoutParams != nil {
		profile.LogoutParams = s.LogoutParams.params
	}
	if s.LogoutSendsUsername != nil {
		profile.LogoutSendsUsername = *s.LogoutSendsUsername
	}
	if s.StatusJSONP != nil {
		profile.StatusUsesJSONPCallback = *s.StatusJSONP
	}
	if s.StatusTimeout > 0 {
		profile.StatusTimeout = time.Duration(s.StatusTimeout)
	}
	if s.AuthTimeout > 0 {
		profile.AuthTimeout = time.Duration(s.AuthTimeout)
	}

	if profile.StatusURL == "" || profile.LoginURL == "" {
		return model.EndpointProfile{}, fmt.Errorf("profile %q: status_url and login_url are required", name)
	}
	return profile.WithDefaults(), nil
}

// LoadCatalog returns the presets merged with the profile file, if any.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return NewCatalog(), nil
	}
	profiles, err := LoadProfiles(path)
	if err != nil {
		return Catalog{}, err
	}
	return NewCatalog(profiles...), nil
}
