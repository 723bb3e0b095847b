package runnerconfig

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
)

type Config struct {
	RunnerName  string            `json:"runnerName"`
	Shell       string            `json:"shell,omitempty"`
	Workspace   string            `json:"workspace,omitempty"`
	ArtifactDir string            `json:"artifactDir,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	LiveLogs    *LiveLogs         `json:"liveLogs,omitempty"`
	Coverage    *Coverage         `json:"coverage,omitempty"`
	ReportFile  string            `json:"reportFile,omitempty"`
}

// LiveLogs configures optional streaming of step logs to a WebSocket
// endpoint.
type LiveLogs struct {
	URL       string `json:"url"`
	AuthToken string `json:"authToken,omitempty"`
}

// Coverage configures the coverage upload service used by the
// codecov/codecov-action built-in. Either Token or ClientID+KeyFile must
// be set; KeyFile points to an RSA private key in PEM format.
type Coverage struct {
	URL      string `json:"url"`
	Token    string `json:"token,omitempty"`
	AuthURL  string `json:"authUrl,omitempty"`
	ClientID string `json:"clientId,omitempty"`
	KeyFile  string `json:"keyFile,omitempty"`
}

func (c *Config) ShellOrDefault() string {
	if c.Shell == "" {
		return "bash"
	}

	return c.Shell
}

func SaveConfigFile(path string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runner config file: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save runner config file: %w", err)
	}

	return nil
}

func ReadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runner config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshal runner config file: %w", err)
	}

	return &config, nil
}

func ReadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("invalid private key file")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return key, nil
}
