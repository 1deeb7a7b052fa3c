package config

import (
	"sort"

	"github.com/micro-ha/srun-guard/internal/model"
)

// Built-in preset names.
const (
	PresetHaut       = "haut"
	PresetHautQt     = "haut-qt"
	PresetHautLegacy = "haut-legacy"
)

const (
	hautHost   = "http://172.16.154.130"
	hautQtHost = "http://172.20.255.2"
)

func hautLoginParams() model.Params {
	return model.Params{
		{Key: "drop", Value: "0"},
		{Key: "pop", Value: "1"},
		{Key: "type", Value: "10"},
		{Key: "n", Value: "117"},
		{Key: "mbytes", Value: "0"},
		{Key: "minutes", Value: "0"},
		{Key: "mac", Value: "02:00:00:00:00:00"},
	}
}

// Presets returns a fresh copy of every built-in profile keyed by name.
func Presets() map[string]model.EndpointProfile {
	return map[string]model.EndpointProfile{
		PresetHaut: {
			Name:                PresetHaut,
			StatusURL:           hautHost + "/cgi-bin/rad_user_info",
			LoginURL:            hautHost + ":69/cgi-bin/srun_portal",
			ACID:                "1",
			LoginParams:         hautLoginParams(),
			LogoutParams:        model.Params{{Key: "type", Value: "10"}},
			LogoutSendsUsername: true,
			StatusTimeout:       model.DefaultStatusTimeout,
			AuthTimeout:         model.DefaultAuthTimeout,
		},
		PresetHautLegacy: {
			Name:        PresetHautLegacy,
			StatusURL:   hautHost + "/cgi-bin/rad_user_info",
			LoginURL:    hautHost + ":69/cgi-bin/srun_portal",
			ACID:        "1",
			LoginParams: hautLoginParams(),
			LogoutParams: model.Params{
				{Key: "mac", Value: ""},
				{Key: "type", Value: "2"},
			},
			LogoutSendsUsername: true,
			StatusTimeout:       model.DefaultStatusTimeout,
			AuthTimeout:         model.DefaultAuthTimeout,
		},
		PresetHautQt: {
			Name:      PresetHautQt,
			StatusURL: hautQtHost + "/cgi-bin/rad_user_info",
			LoginURL:  hautQtHost + "/cgi-bin/srun_portal",
			ACID:      "1",
			LoginParams: model.Params{
				{Key: "type", Value: "2"},
				{Key: "n", Value: "117"},
			},
			StatusUsesJSONPCallback: true,
			StatusTimeout:           model.DefaultStatusTimeout,
			AuthTimeout:             model.DefaultAuthTimeout,
		},
	}
}

// Catalog is the set of profiles available to the daemon and CLI.
type Catalog struct {
	profiles map[string]model.EndpointProfile
}

// NewCatalog starts from the built-in presets and applies overrides on top.
func NewCatalog(overrides ...model.EndpointProfile) Catalog {
	profiles := Presets()
	for _, profile := range overrides {
		if profile.Name == "" {
			continue
		}
		profiles[profile.Name] = profile.Clone()
	}
	return Catalog{profiles: profiles}
}

// Lookup returns the named profile.
func (c Catalog) Lookup(name string) (model.EndpointProfile, bool) {
	profile, ok := c.profiles[name]
	if !ok {
		return model.EndpointProfile{}, false
	}
	return profile.Clone().WithDefaults(), true
}

// Names returns the sorted profile names.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
