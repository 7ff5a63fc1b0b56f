// Package registry manages tool server configurations from three layers:
// TOOL_SERVER_* environment variables, an optional YAML file and the
// database. The database is authoritative; env and file entries only seed
// names the database does not already know.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cronhub/internal/hub"
	"cronhub/internal/logging"
	"cronhub/internal/store"
)

// envPrefix marks environment variables that declare tool servers, e.g.
// TOOL_SERVER_EMAIL=http://localhost:9000/mcp declares a server named email.
const envPrefix = "TOOL_SERVER_"

// envConfigKey names the YAML file path variable and is therefore not a
// server declaration.
const envConfigKey = "TOOL_SERVER_CONFIG"

// fileEntry is one server in the YAML config file.
type fileEntry struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	AuthType    string `yaml:"auth_type"`
	AuthToken   string `yaml:"auth_token"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
}

type fileConfig struct {
	Servers []fileEntry `yaml:"servers"`
}

// Registry wraps the persisted server table with bootstrap and health
// checking.
type Registry struct {
	store      *store.Store
	logger     logging.Logger
	httpClient *http.Client
}

// New creates a registry over the given store.
func New(st *store.Store, logger logging.Logger) *Registry {
	return &Registry{
		store:      st,
		logger:     logging.OrNop(logger),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Bootstrap seeds the database from the environment and the optional YAML
// file. Entries whose name already exists in the database are left alone, so
// runtime edits survive restarts. Invalid entries in bulk sources are logged
// and skipped rather than failing startup.
func (r *Registry) Bootstrap(ctx context.Context, configFile string) error {
	seeds := r.fromEnvironment(os.Environ())

	if configFile != "" {
		fromFile, err := r.fromFile(configFile)
		if err != nil {
			return err
		}
		// File entries override env entries with the same name.
		for name, server := range fromFile {
			seeds[name] = server
		}
	}

	for name, server := range seeds {
		if _, err := r.store.GetServerByName(ctx, name); err == nil {
			continue
		}
		if err := r.store.UpsertServer(ctx, server); err != nil {
			r.logger.Warn("Skipping tool server %s: %v", name, err)
			continue
		}
		r.logger.Info("Registered tool server %s -> %s", name, server.URL)
	}
	return nil
}

// fromEnvironment collects TOOL_SERVER_<NAME>=<url> declarations. Names are
// lowercased. Invalid URLs are logged and skipped.
func (r *Registry) fromEnvironment(environ []string) map[string]*store.ToolServer {
	seeds := make(map[string]*store.ToolServer)
	for _, entry := range environ {
		key, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(key, envPrefix) || key == envConfigKey {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, envPrefix))
		if name == "" {
			continue
		}
		url := strings.TrimSpace(value)
		if err := store.ValidateServerURL(url); err != nil {
			r.logger.Warn("Ignoring %s: %v", key, err)
			continue
		}
		seeds[name] = &store.ToolServer{
			Name:        name,
			URL:         url,
			Transport:   "http",
			Description: "from environment",
			Enabled:     true,
		}
	}
	return seeds
}

// fromFile parses the YAML registry file. A missing or unreadable file is an
// error; individual bad entries are logged and skipped.
func (r *Registry) fromFile(path string) (map[string]*store.ToolServer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	var config fileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", path, err)
	}

	seeds := make(map[string]*store.ToolServer)
	for _, entry := range config.Servers {
		name := strings.ToLower(strings.TrimSpace(entry.Name))
		if name == "" {
			r.logger.Warn("Ignoring registry file entry with empty name")
			continue
		}
		if err := store.ValidateServerURL(entry.URL); err != nil {
			r.logger.Warn("Ignoring registry file entry %s: %v", name, err)
			continue
		}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		seeds[name] = &store.ToolServer{
			Name:        name,
			URL:         entry.URL,
			Transport:   "http",
			AuthType:    entry.AuthType,
			AuthToken:   entry.AuthToken,
			Description: entry.Description,
			Enabled:     enabled,
		}
	}
	return seeds, nil
}

// Add registers or updates a server. Unlike bulk loading this is strict: an
// invalid URL is a hard error.
func (r *Registry) Add(ctx context.Context, server *store.ToolServer) error {
	return r.store.UpsertServer(ctx, server)
}

// Remove deletes a server by name. Returns false when it did not exist.
func (r *Registry) Remove(ctx context.Context, name string) (bool, error) {
	return r.store.RemoveServer(ctx, name)
}

// List returns all known servers.
func (r *Registry) List(ctx context.Context) ([]*store.ToolServer, error) {
	return r.store.ListServers(ctx, false)
}

// Resolve maps server names to connection configs, using every enabled
// server when names is empty. Unknown names are errors.
func (r *Registry) Resolve(ctx context.Context, names []string) ([]hub.ServerConfig, error) {
	if len(names) == 0 {
		servers, err := r.store.ListServers(ctx, true)
		if err != nil {
			return nil, err
		}
		configs := make([]hub.ServerConfig, 0, len(servers))
		for _, server := range servers {
			configs = append(configs, toHubConfig(server))
		}
		return configs, nil
	}

	configs := make([]hub.ServerConfig, 0, len(names))
	for _, name := range names {
		server, err := r.store.GetServerByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if !server.Enabled {
			r.logger.Warn("Tool server %s is disabled, skipping", name)
			continue
		}
		configs = append(configs, toHubConfig(server))
	}
	return configs, nil
}

// CheckHealth probes every enabled server's health endpoint and records the
// result. Probe failures mark the server unhealthy, they never propagate.
func (r *Registry) CheckHealth(ctx context.Context) {
	servers, err := r.store.ListServers(ctx, true)
	if err != nil {
		r.logger.Warn("Health check: list servers: %v", err)
		return
	}
	for _, server := range servers {
		client := hub.NewClient(toHubConfig(server), r.httpClient, r.logger)
		status := "healthy"
		if err := client.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			r.logger.Warn("Tool server %s unhealthy: %v", server.Name, err)
		}
		if err := r.store.UpdateServerHealth(ctx, server.Name, status); err != nil {
			r.logger.Warn("Record health for %s: %v", server.Name, err)
		}
	}
}

func toHubConfig(server *store.ToolServer) hub.ServerConfig {
	return hub.ServerConfig{
		Name:      server.Name,
		URL:       server.URL,
		AuthType:  server.AuthType,
		AuthToken: server.AuthToken,
	}
}
