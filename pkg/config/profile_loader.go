package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicyProfile is a named, file-based policy configuration that selects a
// PDP backend (static, cel or opa, see pkg/pdp) and carries its parameters
// — adapted from the teacher's
// RegionalProfile (a YAML-loaded, per-jurisdiction ceremony/compliance
// profile in pkg/config/profile_loader.go). GATOS has no jurisdictions, but
// the same "load a named YAML profile, fall back to a default" shape fits
// deployments that want their static allow/deny table and backend choice
// stored as a versioned file rather than hardcoded at the call site.
type PolicyProfile struct {
	Name          string          `yaml:"name" json:"name"`
	Code          string          `yaml:"code" json:"code"`
	PolicyVersion string          `yaml:"policy_version" json:"policy_version"`
	Backend       string          `yaml:"backend" json:"backend"` // "static" | "cel" | "opa"
	DefaultAllow  bool            `yaml:"default_allow" json:"default_allow"`
	Rules         map[string]bool `yaml:"rules,omitempty" json:"rules,omitempty"`
	CELExpression string          `yaml:"cel_expression,omitempty" json:"cel_expression,omitempty"`
	OPA           OPAProfile      `yaml:"opa,omitempty" json:"opa,omitempty"`
}

// OPAProfile carries the OPA sidecar connection details for profiles whose
// Backend is "opa".
type OPAProfile struct {
	URL        string `yaml:"url,omitempty" json:"url,omitempty"`
	PolicyPath string `yaml:"policy_path,omitempty" json:"policy_path,omitempty"`
}

// LoadProfile loads a named policy profile YAML from profilesDir, searching
// for policy_<code>.yaml.
func LoadProfile(profilesDir, code string) (*PolicyProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("policy_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy profile %q: %w", code, err)
	}

	var profile PolicyProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse policy profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads every policy_*.yaml file in profilesDir.
func LoadAllProfiles(profilesDir string) (map[string]*PolicyProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "policy_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*PolicyProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile PolicyProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "policy_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// RuleFor returns the explicit rule for topic if one is configured, falling
// back to DefaultAllow otherwise — the lookup pkg/pdp.StaticClient performs
// internally, exposed here so callers can inspect a profile without
// constructing a StaticClient first.
func (p *PolicyProfile) RuleFor(topic string) bool {
	if v, ok := p.Rules[topic]; ok {
		return v
	}
	return p.DefaultAllow
}
