package session

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/columntheory/pkg/interfaces"
)

// Environment variables read by ApplyEnv.
const (
	EnvProject          = "COLUMNTHEORY_PROJECT"
	EnvDataset          = "COLUMNTHEORY_DATASET"
	EnvLocation         = "COLUMNTHEORY_LOCATION"
	EnvReadOnly         = "COLUMNTHEORY_READ_ONLY"
	EnvKMSKeyARN        = "COLUMNTHEORY_KMS_KEY_ARN"
	EnvRoleARN          = "COLUMNTHEORY_ROLE_ARN"
	EnvExternalID       = "COLUMNTHEORY_EXTERNAL_ID"
	EnvMigrationsDir    = "COLUMNTHEORY_MIGRATIONS_DIR"
	EnvMigrationsTable  = "COLUMNTHEORY_MIGRATIONS_TABLE"
	EnvMigrationsBucket = "COLUMNTHEORY_MIGRATIONS_BUCKET"
	EnvMigrationsPrefix = "COLUMNTHEORY_MIGRATIONS_PREFIX"
	EnvLedgerTable      = "COLUMNTHEORY_LEDGER_TABLE"
	EnvLockTable        = "COLUMNTHEORY_LOCK_TABLE"
	EnvRegion           = "AWS_REGION"
	EnvEndpoint         = "AWS_ENDPOINT_URL"
)

// DefaultMigrationsTable is the warehouse table that records applied migrations.
const DefaultMigrationsTable = "columntheory_migrations"

// ReadOnlyPolicy disables individual write operations.
type ReadOnlyPolicy struct {
	Create    bool `json:"create" yaml:"create"`
	Update    bool `json:"update" yaml:"update"`
	Destroy   bool `json:"destroy" yaml:"destroy"`
	Increment bool `json:"increment" yaml:"increment"`
}

// ReadOnlyAll blocks every write.
func ReadOnlyAll() ReadOnlyPolicy {
	return ReadOnlyPolicy{Create: true, Update: true, Destroy: true, Increment: true}
}

// Blocks reports whether op ("create", "update", "destroy", "increment") is disabled.
func (p ReadOnlyPolicy) Blocks(op string) bool {
	switch op {
	case "create", "bulkCreate":
		return p.Create
	case "update":
		return p.Update
	case "destroy":
		return p.Destroy
	case "increment", "decrement":
		return p.Increment
	}
	return false
}

// ParseReadOnly accepts a boolean or a comma separated list of operations.
func ParseReadOnly(v string) (ReadOnlyPolicy, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ReadOnlyPolicy{}, nil
	}
	if b, err := strconv.ParseBool(v); err == nil {
		if b {
			return ReadOnlyAll(), nil
		}
		return ReadOnlyPolicy{}, nil
	}

	var p ReadOnlyPolicy
	for _, op := range strings.Split(v, ",") {
		switch strings.ToLower(strings.TrimSpace(op)) {
		case "create":
			p.Create = true
		case "update":
			p.Update = true
		case "destroy", "delete":
			p.Destroy = true
		case "increment":
			p.Increment = true
		case "":
		default:
			return ReadOnlyPolicy{}, fmt.Errorf("unknown read-only operation %q", op)
		}
	}
	return p, nil
}

// Config holds the configuration for ColumnTheory
type Config struct {
	CredentialsProvider aws.CredentialsProvider `json:"-" yaml:"-"`
	// KMSClient overrides the client built from the AWS config.
	KMSClient        KMSClient                         `json:"-" yaml:"-"`
	EncryptionRand   io.Reader                         `json:"-" yaml:"-"`
	Now              func() time.Time                  `json:"-" yaml:"-"`
	Logger           *slog.Logger                      `json:"-" yaml:"-"`
	AWSConfigOptions []func(*config.LoadOptions) error `json:"-" yaml:"-"`
	Project          string                            `json:"project" yaml:"project"`
	Dataset          string                            `json:"dataset" yaml:"dataset"`
	Location         string                            `json:"location" yaml:"location"`
	Region           string                            `json:"region" yaml:"region"`
	Endpoint         string                            `json:"endpoint" yaml:"endpoint"`
	AccessKeyID      string                            `json:"accessKeyId" yaml:"accessKeyId"`
	SecretAccessKey  string                            `json:"-" yaml:"secretAccessKey"`
	SessionToken     string                            `json:"-" yaml:"sessionToken"`
	RoleARN          string                            `json:"roleArn" yaml:"roleArn"`
	ExternalID       string                            `json:"externalId" yaml:"externalId"`
	// KMSKeyARN is required when an entity declares Encrypted attributes.
	KMSKeyARN        string         `json:"kmsKeyArn" yaml:"kmsKeyArn"`
	MigrationsDir    string         `json:"migrationsDir" yaml:"migrationsDir"`
	MigrationsTable  string         `json:"migrationsTable" yaml:"migrationsTable"`
	MigrationsBucket string         `json:"migrationsBucket" yaml:"migrationsBucket"`
	MigrationsPrefix string         `json:"migrationsPrefix" yaml:"migrationsPrefix"`
	LedgerTable      string         `json:"ledgerTable" yaml:"ledgerTable"`
	LockTable        string         `json:"lockTable" yaml:"lockTable"`
	ReadOnly         ReadOnlyPolicy `json:"readOnly" yaml:"readOnly"`
	MaxRetries       int            `json:"maxRetries" yaml:"maxRetries"`
}

// KMSClient is the minimal AWS KMS surface ColumnTheory needs for attribute encryption.
type KMSClient = interfaces.KMSAPI

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Region:          "us-east-1",
		MaxRetries:      3,
		MigrationsDir:   "migrations",
		MigrationsTable: DefaultMigrationsTable,
	}
}

// Clock returns Now, or time.Now when unset.
func (c *Config) Clock() func() time.Time {
	if c == nil || c.Now == nil {
		return time.Now
	}
	return c.Now
}

// Log returns Logger, or slog.Default when unset.
func (c *Config) Log() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Load reads the YAML file at path (skipped when empty), then overlays
// variables from envFiles and the process environment. Process variables win.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	fileEnv, err := LoadEnv(envFiles...)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return fileEnv[key]
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv reads dotenv files without touching the process environment.
// With no arguments it reads ".env". Missing files are skipped.
func LoadEnv(files ...string) (map[string]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	out := make(map[string]string)
	for _, file := range files {
		vars, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		for k, v := range vars {
			out[k] = v
		}
	}
	return out, nil
}

// ApplyEnv overlays non-empty variables returned by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	for key, dst := range map[string]*string{
		EnvProject:          &c.Project,
		EnvDataset:          &c.Dataset,
		EnvLocation:         &c.Location,
		EnvRegion:           &c.Region,
		EnvEndpoint:         &c.Endpoint,
		EnvKMSKeyARN:        &c.KMSKeyARN,
		EnvRoleARN:          &c.RoleARN,
		EnvExternalID:       &c.ExternalID,
		EnvMigrationsDir:    &c.MigrationsDir,
		EnvMigrationsTable:  &c.MigrationsTable,
		EnvMigrationsBucket: &c.MigrationsBucket,
		EnvMigrationsPrefix: &c.MigrationsPrefix,
		EnvLedgerTable:      &c.LedgerTable,
		EnvLockTable:        &c.LockTable,
	} {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv(EnvReadOnly); v != "" {
		p, err := ParseReadOnly(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReadOnly, err)
		}
		c.ReadOnly = p
	}
	return nil
}
