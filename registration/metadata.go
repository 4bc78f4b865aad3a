package registration

import (
	"context"
	"encoding/json"
	"strings"
)

// GitMetadata describes the commit the deployed workflow host was built
// from. Entirely optional — this package never probes a filesystem or
// git binary itself, so it only appears when a caller supplies a
// GitProbe that can produce one.
type GitMetadata struct {
	SHA            string `json:"sha"`
	Branch         string `json:"branch"`
	Committer      string `json:"committer"`
	CommitterDate  string `json:"committerDate"`
	CommitMessage  string `json:"commitMessage"`
	Origin         string `json:"origin,omitempty"`
}

// Metadata is the envelope sent alongside INITIALIZE_HOST_V2.
type Metadata struct {
	Git             *GitMetadata      `json:"git,omitempty"`
	PackageMetadata json.RawMessage   `json:"packageMetadata,omitempty"`
	Env             map[string]string `json:"env"`
}

// GitProbe produces git metadata for the running deployment, or (nil,
// nil) when none is available. The cosmetic default, NoGitProbe, never
// probes anything — callers that want real metadata inject their own
// implementation (shelling to git, reading .git/HEAD, reading CI env
// vars), which this module deliberately does not ship.
type GitProbe interface {
	Probe(ctx context.Context) (*GitMetadata, error)
}

// NoGitProbe is the default GitProbe: always reports no metadata.
type NoGitProbe struct{}

func (NoGitProbe) Probe(context.Context) (*GitMetadata, error) { return nil, nil }

// PackageMetadataSource produces the "triggerdotdev" section of a package
// manifest, or nil when none is configured.
type PackageMetadataSource interface {
	Load(ctx context.Context) (json.RawMessage, error)
}

// EnvPackageMetadataSource reads package metadata from a flattened
// projection of npm_package_triggerdotdev_* environment entries — the
// Go-reachable equivalent of inspecting package.json's "triggerdotdev"
// section, since this process has no package.json.
type EnvPackageMetadataSource struct {
	Env []string
}

const envPackagePrefix = "npm_package_triggerdotdev_"

func (s EnvPackageMetadataSource) Load(context.Context) (json.RawMessage, error) {
	fields := map[string]string{}
	for _, kv := range s.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(k, envPackagePrefix) {
			fields[strings.TrimPrefix(k, envPackagePrefix)] = v
		}
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return json.Marshal(fields)
}

// ForwardedEnv returns every TRIGGER_-prefixed entry of env except
// TRIGGER_API_KEY, with the prefix stripped.
func ForwardedEnv(env []string) map[string]string {
	const prefix = "TRIGGER_"
	out := map[string]string{}
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		if k == "TRIGGER_API_KEY" {
			continue
		}
		out[strings.TrimPrefix(k, prefix)] = v
	}
	return out
}

// BuildMetadata assembles the Metadata envelope from process env, an
// optional git probe, and an optional package metadata source.
func BuildMetadata(ctx context.Context, env []string, probe GitProbe, pkgSource PackageMetadataSource) (Metadata, error) {
	if probe == nil {
		probe = NoGitProbe{}
	}
	git, err := probe.Probe(ctx)
	if err != nil {
		return Metadata{}, err
	}

	var pkg json.RawMessage
	if pkgSource != nil {
		pkg, err = pkgSource.Load(ctx)
		if err != nil {
			return Metadata{}, err
		}
	}

	return Metadata{
		Git:             git,
		PackageMetadata: pkg,
		Env:             ForwardedEnv(env),
	}, nil
}
