package configsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/micro-ha/srun-guard/internal/config"
	"github.com/micro-ha/srun-guard/internal/model"
)

// Client resolves the active endpoint profile from the presets and the
// optional profile file.
type Client struct {
	profileName  string
	profilesPath string
}

// FetchResult is one resolved profile and a version that changes whenever
// its source changes.
type FetchResult struct {
	Profile model.EndpointProfile
	Version string
}

func NewClient(profileName, profilesPath string) *Client {
	return &Client{profileName: profileName, profilesPath: profilesPath}
}

func (c *Client) FetchProfile(ctx context.Context) (FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return FetchResult{}, err
	}

	catalog := config.NewCatalog()
	version := "preset:" + c.profileName
	if c.profilesPath != "" {
		data, err := os.ReadFile(c.profilesPath)
		if err != nil {
			return FetchResult{}, fmt.Errorf("read profiles file: %w", err)
		}
		profiles, err := config.ParseProfiles(data)
		if err != nil {
			return FetchResult{}, err
		}
		catalog = config.NewCatalog(profiles...)
		sum := sha256.Sum256(data)
		version = c.profileName + ":" + hex.EncodeToString(sum[:])
	}

	profile, ok := catalog.Lookup(c.profileName)
	if !ok {
		return FetchResult{}, fmt.Errorf("profile %q not found", c.profileName)
	}
	return FetchResult{Profile: profile, Version: version}, nil
}
