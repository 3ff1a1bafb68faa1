// Package config assembles the runtime configuration from environment
// variables. The CLI layer loads a .env file first (godotenv), so every
// knob can come from either the process environment or a project .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sheetflow/sheetflow/internal/ingest"
	"github.com/sheetflow/sheetflow/internal/workbook"
	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

// GraphConfig identifies the watched remote folder and the credential used
// to reach it.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string // empty selects the interactive device-code flow
	DriveID      string
	FolderItemID string
	BaseURL      string // empty uses the public Graph endpoint

	// AuthMethod overrides credential selection: "default" uses the Azure
	// default credential chain (managed identity, workload identity, CLI).
	// Empty picks client-secret when a secret is set, device-code otherwise.
	AuthMethod string
}

// Validate checks the GraphConfig for required fields.
func (c *GraphConfig) Validate() error {
	var errs []error

	if c.TenantID == "" {
		errs = append(errs, fmt.Errorf("TENANT_ID is required: %w", sheetflow.ErrInvalidConfig))
	}
	if c.ClientID == "" {
		errs = append(errs, fmt.Errorf("CLIENT_ID is required: %w", sheetflow.ErrInvalidConfig))
	}
	if c.DriveID == "" {
		errs = append(errs, fmt.Errorf("SP_DRIVE_ID is required: %w", sheetflow.ErrInvalidConfig))
	}
	if c.FolderItemID == "" {
		errs = append(errs, fmt.Errorf("SP_FOLDER_ITEM_ID is required: %w", sheetflow.ErrInvalidConfig))
	}
	switch c.AuthMethod {
	case "", "default":
	default:
		errs = append(errs, fmt.Errorf("unknown auth method %q: %w", c.AuthMethod, sheetflow.ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// Config is the full runtime configuration.
type Config struct {
	Graph      GraphConfig
	Connection sheetflow.ConnectionConfig
	Publisher  sheetflow.PublisherConfig
	Planner    workbook.Config
	Ingest     ingest.Config

	// StateDir holds the checkpoint file and the processed index.
	StateDir string

	// PollInterval is the sleep between exhausted delta passes.
	PollInterval time.Duration

	// InitialMode controls handling of pre-existing folder contents on
	// first start.
	InitialMode sheetflow.InitialMode
}

// Load reads the configuration from the environment. Parse failures and
// missing required values are reported together.
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		Graph: GraphConfig{
			TenantID:     os.Getenv("TENANT_ID"),
			ClientID:     os.Getenv("CLIENT_ID"),
			ClientSecret: os.Getenv("CLIENT_SECRET"),
			DriveID:      os.Getenv("SP_DRIVE_ID"),
			FolderItemID: os.Getenv("SP_FOLDER_ITEM_ID"),
			BaseURL:      os.Getenv("GRAPH_BASE_URL"),
			AuthMethod:   strings.ToLower(strings.TrimSpace(os.Getenv("GRAPH_AUTH"))),
		},
		Connection: sheetflow.ConnectionConfig{
			Host:     os.Getenv("PGHOST"),
			Port:     intEnv("PGPORT", 5432, &errs),
			Database: os.Getenv("PGDATABASE"),
			Username: os.Getenv("PGUSER"),
			Password: os.Getenv("PGPASSWORD"),
			SSLMode:  os.Getenv("PGSSLMODE"),
			AppName:  stringEnv("PGAPPNAME", "sheetflow"),
		},
		StateDir: stringEnv("STATE_DIR", ".state"),
		Ingest: ingest.Config{
			LandingDir:   stringEnv("LANDING_DIR", "landing"),
			ProcessedDir: stringEnv("PROCESSED_DIR", "processed"),
			KeepHistory:  os.Getenv("KEEP_PROCESSED_HISTORY") == "1",
		},
		PollInterval: time.Duration(intEnv("POLL_SECONDS", int(sheetflow.DefaultPollInterval/time.Second), &errs)) * time.Second,
	}

	if v := intEnv("PGCONNECT_TIMEOUT", 0, &errs); v > 0 {
		cfg.Connection.ConnectTimeout = time.Duration(v) * time.Second
	}

	mode, err := sheetflow.ParseInitialMode(os.Getenv("INITIAL_MODE"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.InitialMode = mode

	swap, err := sheetflow.ParseSwapMode(os.Getenv("SWAP_MODE"))
	if err != nil {
		errs = append(errs, err)
	}
	overflow, err := sheetflow.ParseOverflowPolicy(os.Getenv("TRUNCATE_OVERFLOW"))
	if err != nil {
		errs = append(errs, err)
	}

	identMax := intEnv("IDENT_MAX", sheetflow.DefaultIdentMax, &errs)
	fieldWidth := intEnv("FIELD_WIDTH", sheetflow.DefaultFieldWidth, &errs)

	cfg.Publisher = sheetflow.PublisherConfig{
		SwapMode:       swap,
		IdentMax:       identMax,
		FieldWidth:     fieldWidth,
		GrantTo:        splitList(os.Getenv("GRANT_TO")),
		RetainVersions: intEnv("RETAIN_VERSIONS", sheetflow.DefaultRetainVersions, &errs),
		BatchSize:      intEnv("LOAD_BATCH_SIZE", sheetflow.DefaultLoadBatchSize, &errs),
	}
	cfg.Planner = workbook.Config{
		Overflow:   overflow,
		FieldWidth: fieldWidth,
		IdentMax:   identMax,
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks every section needed for the watch loop. The publish
// subcommand validates only the sections it uses.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Graph.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.validateStore()...)

	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("poll interval must be at least one second: %w", sheetflow.ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// ValidatePublish checks only the sections the one-shot publish path uses.
func (c *Config) ValidatePublish() error {
	return errors.Join(c.validateStore()...)
}

func (c *Config) validateStore() []error {
	var errs []error

	if err := c.Connection.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Publisher.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Planner.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Ingest.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func stringEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func intEnv(name string, fallback int, errs *[]error) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q: %w", name, v, sheetflow.ErrInvalidConfig))
		return fallback
	}
	return n
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
