// Package secrets reads secrets through the Doppler CLI
package secrets

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// DopplerClient provides access to secrets stored in Doppler
type DopplerClient struct {
	Project     string
	Config      string
	initialized bool
	lookPath    func(string) (string, error)
	run         func(name string, args ...string) ([]byte, error)
}

// NewDopplerClient creates a new Doppler client
func NewDopplerClient(project, config string) *DopplerClient {
	return &DopplerClient{
		Project:  project,
		Config:   config,
		lookPath: exec.LookPath,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
	}
}

// Initialize checks that a project is configured and the Doppler CLI is installed
func (d *DopplerClient) Initialize() error {
	if d.Project == "" {
		return fmt.Errorf("doppler project not configured")
	}
	if _, err := d.lookPath("doppler"); err != nil {
		return fmt.Errorf("doppler CLI not found: %w", err)
	}
	d.initialized = true
	return nil
}

// GetSecret retrieves a secret, preferring values injected by `doppler run`
func (d *DopplerClient) GetSecret(key string) (string, error) {
	if !d.initialized {
		if err := d.Initialize(); err != nil {
			return "", err
		}
	}

	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	output, err := d.run("doppler", "secrets", "get", key,
		"--project", d.Project,
		"--config", d.Config,
		"--plain")
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}

	return strings.TrimSpace(string(output)), nil
}

// GetSecretWithFallback gets a secret from Doppler with a fallback value
func (d *DopplerClient) GetSecretWithFallback(key, fallback string) string {
	value, err := d.GetSecret(key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}

// Resolve overwrites each target with its Doppler value. Targets whose secret
// cannot be read keep their current value.
func (d *DopplerClient) Resolve(targets map[string]*string) {
	for key, target := range targets {
		*target = d.GetSecretWithFallback(key, *target)
	}
}
