package hyrecsv

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ebinesh25/gen-hyre-csv/question"
	"github.com/ebinesh25/gen-hyre-csv/table"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a Converter.
type Config struct {
	// Defaults are applied to every record unless the block declares its
	// own category, difficulty, score or tags.
	Defaults question.Defaults `json:"defaults" yaml:"defaults"`

	// CategoryFromFilename derives the category (and the tags, unless set
	// above) from each input file name: "Synonyms Test -DB.txt" gives
	// "Synonyms".
	CategoryFromFilename bool `json:"category_from_filename" yaml:"category_from_filename"`

	// BreakToken is the escape sequence stored in place of line breaks
	// inside explanations. Defaults to a literal backslash-n.
	BreakToken string `json:"break_token" yaml:"break_token"`

	// TopicKeywords are header words ("aptitude", "reasoning", ...) that
	// mark a numbered line as a section heading rather than a question.
	TopicKeywords []string `json:"topic_keywords" yaml:"topic_keywords"`

	// Output
	Schema string `json:"schema" yaml:"schema"` // legacy | variable
	Format string `json:"format" yaml:"format"` // csv | xlsx

	// Workers bounds ConvertBatch concurrency.
	Workers int `json:"workers" yaml:"workers"`

	DB     DBConfig     `json:"db" yaml:"db"`
	Media  MediaConfig  `json:"media" yaml:"media"`
	Server ServerConfig `json:"server" yaml:"server"`
}

// DBConfig selects the optional question-bank store. An empty DSN disables
// persistence.
type DBConfig struct {
	Driver string `json:"driver" yaml:"driver"` // sqlite | postgres
	DSN    string `json:"dsn" yaml:"dsn"`
}

// MediaConfig configures inline image uploads. An empty Dir disables them
// and inline images stay as data URLs.
type MediaConfig struct {
	Dir           string        `json:"dir" yaml:"dir"`
	BaseURL       string        `json:"base_url" yaml:"base_url"`
	Prefix        string        `json:"prefix" yaml:"prefix"`
	MaxImageBytes int64         `json:"max_image_bytes" yaml:"max_image_bytes"`
	UploadTimeout time.Duration `json:"upload_timeout" yaml:"upload_timeout"`
}

// ServerConfig configures cmd/server.
type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	APIKey         string   `json:"api_key" yaml:"api_key"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	MaxUploadMB    int      `json:"max_upload_mb" yaml:"max_upload_mb"`
}

// DefaultConfig returns a Config with the question-bank import defaults.
func DefaultConfig() Config {
	return Config{
		Defaults:      question.StandardDefaults(),
		BreakToken:    question.DefaultBreakToken,
		TopicKeywords: append([]string(nil), question.DefaultTopicKeywords...),
		Schema:        table.SchemaLegacy.String(),
		Format:        "csv",
		Workers:       4,
		DB: DBConfig{
			Driver: "sqlite",
		},
		Media: MediaConfig{
			UploadTimeout: question.DefaultUploadTimeout,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    100,
		},
	}
}

// LoadConfig reads a YAML config file over DefaultConfig and validates
// the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c Config) Validate() error {
	if _, err := table.ParseSchema(c.Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Format) {
	case "", "csv", "xlsx":
	default:
		return fmt.Errorf("%w: unsupported output format %q (use csv or xlsx)", ErrInvalidConfig, c.Format)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0", ErrInvalidConfig)
	}
	if c.Defaults.Score < 0 {
		return fmt.Errorf("%w: defaults.score must be >= 0", ErrInvalidConfig)
	}
	switch strings.ToLower(c.DB.Driver) {
	case "", "sqlite", "sqlite3", "postgres", "postgresql", "pg", "pgx":
	default:
		return fmt.Errorf("%w: unsupported db driver %q", ErrInvalidConfig, c.DB.Driver)
	}
	if c.Media.MaxImageBytes < 0 {
		return fmt.Errorf("%w: media.max_image_bytes must be >= 0", ErrInvalidConfig)
	}
	if c.Server.MaxUploadMB < 0 {
		return fmt.Errorf("%w: server.max_upload_mb must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// ApplyEnv overrides fields from HYRECSV_* environment variables. getenv
// is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("HYRECSV_SCHEMA", &c.Schema)
	str("HYRECSV_FORMAT", &c.Format)
	str("HYRECSV_DB_DRIVER", &c.DB.Driver)
	str("HYRECSV_DB_DSN", &c.DB.DSN)
	str("HYRECSV_MEDIA_DIR", &c.Media.Dir)
	str("HYRECSV_MEDIA_BASE_URL", &c.Media.BaseURL)
	str("HYRECSV_ADDR", &c.Server.Addr)
	str("HYRECSV_API_KEY", &c.Server.APIKey)
	str("HYRECSV_CATEGORY", &c.Defaults.Category)
	str("HYRECSV_DIFFICULTY", &c.Defaults.Difficulty)
	str("HYRECSV_TAGS", &c.Defaults.Tags)

	if v := getenv("HYRECSV_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := getenv("HYRECSV_SCORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Defaults.Score = n
		}
	}
	if v := getenv("HYRECSV_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
}

// TableSchema returns the parsed output schema.
func (c Config) TableSchema() table.Schema {
	s, err := table.ParseSchema(c.Schema)
	if err != nil {
		return table.SchemaLegacy
	}
	return s
}

// MaxUploadBytes returns the server's multipart limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	if c.Server.MaxUploadMB <= 0 {
		return 100 << 20
	}
	return int64(c.Server.MaxUploadMB) << 20
}

// questionOptions builds the immutable parser configuration.
func (c Config) questionOptions(uploader question.ImageUploader) question.Options {
	return question.Options{
		Defaults:      c.Defaults,
		BreakToken:    c.BreakToken,
		TopicKeywords: c.TopicKeywords,
		Uploader:      uploader,
		UploadTimeout: c.Media.UploadTimeout,
		OptionColumns: table.Writer{Schema: c.TableSchema()}.OptionLimit(),
	}
}
