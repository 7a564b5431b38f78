// Package config loads application configuration from environment variables
// and a local TOML secrets file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrMissingConfiguration indicates the Supabase credential could not be
// resolved from the environment or the secrets file. Startup must abort;
// there is no recovery path.
var ErrMissingConfiguration = errors.New("missing configuration")

// DefaultSecretsFile is the local-development secrets file, read when the
// environment does not supply the Supabase credential.
const DefaultSecretsFile = "secrets.toml"

// Config holds the application configuration. The Supabase credential is
// resolved once at startup and is immutable for the process lifetime.
type Config struct {
	SupabaseURL string
	SupabaseKey string

	ListenAddr      string
	DBPath          string
	SitesRefresh    time.Duration
	ClientsRefresh  time.Duration
	SecretsFilePath string
}

// secretsFile models the TOML secrets file:
//
//	[supabase]
//	url = "https://xyz.supabase.co"
//	key = "service-role-or-anon-key"
type secretsFile struct {
	Supabase struct {
		URL string `toml:"url"`
		Key string `toml:"key"`
	} `toml:"supabase"`
}

// Load reads configuration and returns a validated Config.
//
// The Supabase credential is resolved from PVPANEL_SUPABASE_URL and
// PVPANEL_SUPABASE_KEY first (the hosted-platform settings mechanism), then
// from the [supabase] section of the secrets file (local development,
// path from PVPANEL_SECRETS_FILE, default "secrets.toml"). Both fields must
// be non-empty; otherwise Load fails with ErrMissingConfiguration so the
// process never reaches backend-dependent code. Error messages name the
// missing field and never include the key value.
//
// Optional variables with defaults: PVPANEL_LISTEN_ADDR (127.0.0.1:8080),
// PVPANEL_DB_PATH (pvpanel.db), PVPANEL_SITES_REFRESH (1m),
// PVPANEL_CLIENTS_REFRESH (5m).
func Load() (*Config, error) {
	secretsPath := DefaultSecretsFile
	if v, ok := os.LookupEnv("PVPANEL_SECRETS_FILE"); ok && v != "" {
		secretsPath = v
	}

	url, key, err := resolveCredential(secretsPath)
	if err != nil {
		return nil, err
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("PVPANEL_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "pvpanel.db"
	if v, ok := os.LookupEnv("PVPANEL_DB_PATH"); ok {
		dbPath = v
	}

	sitesRefresh := time.Minute
	if v, ok := os.LookupEnv("PVPANEL_SITES_REFRESH"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("PVPANEL_SITES_REFRESH has invalid duration %q: %w", v, err)
		}
		sitesRefresh = parsed
	}

	clientsRefresh := 5 * time.Minute
	if v, ok := os.LookupEnv("PVPANEL_CLIENTS_REFRESH"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("PVPANEL_CLIENTS_REFRESH has invalid duration %q: %w", v, err)
		}
		clientsRefresh = parsed
	}

	return &Config{
		SupabaseURL:     url,
		SupabaseKey:     key,
		ListenAddr:      listenAddr,
		DBPath:          dbPath,
		SitesRefresh:    sitesRefresh,
		ClientsRefresh:  clientsRefresh,
		SecretsFilePath: secretsPath,
	}, nil
}

// resolveCredential returns the Supabase url and key. Environment values
// take precedence over the secrets file; an empty value is treated the same
// as a missing one.
func resolveCredential(secretsPath string) (string, string, error) {
	url := os.Getenv("PVPANEL_SUPABASE_URL")
	key := os.Getenv("PVPANEL_SUPABASE_KEY")

	if url == "" || key == "" {
		fileURL, fileKey, err := readSecretsFile(secretsPath)
		if err != nil {
			return "", "", err
		}
		if url == "" {
			url = fileURL
		}
		if key == "" {
			key = fileKey
		}
	}

	if url == "" {
		return "", "", fmt.Errorf("supabase url not set (PVPANEL_SUPABASE_URL or [supabase].url in %s): %w", secretsPath, ErrMissingConfiguration)
	}
	if key == "" {
		return "", "", fmt.Errorf("supabase key not set (PVPANEL_SUPABASE_KEY or [supabase].key in %s): %w", secretsPath, ErrMissingConfiguration)
	}

	return url, key, nil
}

// readSecretsFile parses the TOML secrets file. A missing file is not an
// error here; the caller decides once both sources have been consulted.
func readSecretsFile(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("read secrets file %s: %w", path, err)
	}

	var secrets secretsFile
	if err := toml.Unmarshal(data, &secrets); err != nil {
		return "", "", fmt.Errorf("parse secrets file %s: %w", path, err)
	}

	return secrets.Supabase.URL, secrets.Supabase.Key, nil
}
