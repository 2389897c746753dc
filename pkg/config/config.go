// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all reelsheet configuration.
type Config struct {
	Version int `yaml:"version"`

	Sheets     SheetsConfig     `yaml:"sheets"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Media      MediaConfig      `yaml:"media"`
	Storage    StorageConfig    `yaml:"storage"`
	Sequence   SequenceConfig   `yaml:"sequence"`
	Server     ServerConfig     `yaml:"server"`
	Bot        BotConfig        `yaml:"bot"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	LogLevel string `yaml:"log_level"`
}

// SheetsConfig addresses the destination spreadsheets.
type SheetsConfig struct {
	// GeneralID is the default destination spreadsheet.
	GeneralID string `yaml:"general_id"`
	// TravelID, when set, receives batches containing places or hotels.
	TravelID string `yaml:"travel_id"`
	// ProductsID, when set, receives product batches.
	ProductsID string `yaml:"products_id"`
	// CredentialsPath is the service account JSON file.
	CredentialsPath string `yaml:"credentials_path"`
	// Tab is the worksheet name rows are appended to.
	Tab string `yaml:"tab"`
}

// ExtractionConfig controls the item-extraction model.
type ExtractionConfig struct {
	UseLLM         bool    `yaml:"use_llm"`
	OpenAIKey      string  `yaml:"openai_key"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxSourceChars int     `yaml:"max_source_chars"`
	// FallbackConfidence is assigned to the single review item produced
	// when the model fails or is disabled.
	FallbackConfidence float64 `yaml:"fallback_confidence"`
}

// EnrichmentConfig controls geocoding and field completion.
type EnrichmentConfig struct {
	NominatimURL string  `yaml:"nominatim_url"`
	UserAgent    string  `yaml:"user_agent"`
	// ConfidenceFloor is the minimum confidence once a place's location
	// has been resolved.
	ConfidenceFloor float64       `yaml:"confidence_floor"`
	Timeout         time.Duration `yaml:"timeout"`
}

// MediaConfig controls transcript and OCR extraction.
type MediaConfig struct {
	WhisperBackend string `yaml:"whisper_backend"` // openai | off
	WhisperModel   string `yaml:"whisper_model"`
	FFmpegPath     string `yaml:"ffmpeg_path"`
	TesseractPath  string `yaml:"tesseract_path"`
	MaxKeyframes   int    `yaml:"max_keyframes"`
}

// StorageConfig for local persistence.
type StorageConfig struct {
	TempDir    string `yaml:"temp_dir"`
	BackupPath string `yaml:"backup_path"`
	LedgerPath string `yaml:"ledger_path"`

	// Optional off-site replication of the backup file.
	S3 S3Config `yaml:"s3"`
}

// S3Config for backup replication.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// SequenceConfig for the redis-backed index allocator.
type SequenceConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ServerConfig for the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BotConfig for the Telegram front end.
type BotConfig struct {
	Token       string `yaml:"token"`
	AdminChatID string `yaml:"admin_chat_id"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Sheets: SheetsConfig{
			Tab: "Sheet1",
		},
		Extraction: ExtractionConfig{
			Model:              "gpt-4o-mini",
			Temperature:        0.2,
			MaxSourceChars:     18000,
			FallbackConfidence: 0.3,
		},
		Enrichment: EnrichmentConfig{
			NominatimURL:    "https://nominatim.openstreetmap.org",
			UserAgent:       "reelsheet/1.0 (contact: admin@example.com)",
			ConfidenceFloor: 0.7,
			Timeout:         15 * time.Second,
		},
		Media: MediaConfig{
			WhisperBackend: "openai",
			WhisperModel:   "whisper-1",
			MaxKeyframes:   8,
		},
		Storage: StorageConfig{
			TempDir:    filepath.Join(os.TempDir(), "reelsheet"),
			BackupPath: filepath.Join(os.TempDir(), "reelsheet", "backup.csv"),
			LedgerPath: filepath.Join(os.TempDir(), "reelsheet", "ledger.db"),
		},
		Sequence: SequenceConfig{
			Prefix:  "reelsheet:seq:",
			Timeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
		LogLevel: "info",
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order. An
// explicit path, when given, is merged last among files so it wins over
// the discovered locations.
func (m *Manager) Load(explicitPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	paths := m.getConfigPaths()
	if explicitPath != "" {
		paths = append(paths, explicitPath)
	}

	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("load %s: %w", path, err)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	m.ensureDirs()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/reelsheet/config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".reelsheet", "config.yaml"))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".reelsheet.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	// Sheets
	if src.Sheets.GeneralID != "" {
		m.config.Sheets.GeneralID = src.Sheets.GeneralID
	}
	if src.Sheets.TravelID != "" {
		m.config.Sheets.TravelID = src.Sheets.TravelID
	}
	if src.Sheets.ProductsID != "" {
		m.config.Sheets.ProductsID = src.Sheets.ProductsID
	}
	if src.Sheets.CredentialsPath != "" {
		m.config.Sheets.CredentialsPath = src.Sheets.CredentialsPath
	}
	if src.Sheets.Tab != "" {
		m.config.Sheets.Tab = src.Sheets.Tab
	}

	// Extraction
	if src.Extraction.UseLLM {
		m.config.Extraction.UseLLM = true
	}
	if src.Extraction.OpenAIKey != "" {
		m.config.Extraction.OpenAIKey = src.Extraction.OpenAIKey
	}
	if src.Extraction.Model != "" {
		m.config.Extraction.Model = src.Extraction.Model
	}
	if src.Extraction.Temperature != 0 {
		m.config.Extraction.Temperature = src.Extraction.Temperature
	}
	if src.Extraction.MaxSourceChars != 0 {
		m.config.Extraction.MaxSourceChars = src.Extraction.MaxSourceChars
	}
	if src.Extraction.FallbackConfidence != 0 {
		m.config.Extraction.FallbackConfidence = src.Extraction.FallbackConfidence
	}

	// Enrichment
	if src.Enrichment.NominatimURL != "" {
		m.config.Enrichment.NominatimURL = src.Enrichment.NominatimURL
	}
	if src.Enrichment.UserAgent != "" {
		m.config.Enrichment.UserAgent = src.Enrichment.UserAgent
	}
	if src.Enrichment.ConfidenceFloor != 0 {
		m.config.Enrichment.ConfidenceFloor = src.Enrichment.ConfidenceFloor
	}
	if src.Enrichment.Timeout != 0 {
		m.config.Enrichment.Timeout = src.Enrichment.Timeout
	}

	// Media
	if src.Media.WhisperBackend != "" {
		m.config.Media.WhisperBackend = src.Media.WhisperBackend
	}
	if src.Media.WhisperModel != "" {
		m.config.Media.WhisperModel = src.Media.WhisperModel
	}
	if src.Media.FFmpegPath != "" {
		m.config.Media.FFmpegPath = src.Media.FFmpegPath
	}
	if src.Media.TesseractPath != "" {
		m.config.Media.TesseractPath = src.Media.TesseractPath
	}
	if src.Media.MaxKeyframes != 0 {
		m.config.Media.MaxKeyframes = src.Media.MaxKeyframes
	}

	// Storage
	if src.Storage.TempDir != "" {
		m.config.Storage.TempDir = src.Storage.TempDir
	}
	if src.Storage.BackupPath != "" {
		m.config.Storage.BackupPath = src.Storage.BackupPath
	}
	if src.Storage.LedgerPath != "" {
		m.config.Storage.LedgerPath = src.Storage.LedgerPath
	}
	if src.Storage.S3.Bucket != "" {
		m.config.Storage.S3 = src.Storage.S3
	}

	// Sequence
	if src.Sequence.RedisAddr != "" {
		m.config.Sequence.RedisAddr = src.Sequence.RedisAddr
	}
	if src.Sequence.RedisPassword != "" {
		m.config.Sequence.RedisPassword = src.Sequence.RedisPassword
	}
	if src.Sequence.RedisDB != 0 {
		m.config.Sequence.RedisDB = src.Sequence.RedisDB
	}
	if src.Sequence.Prefix != "" {
		m.config.Sequence.Prefix = src.Sequence.Prefix
	}

	// Server
	if src.Server.Host != "" {
		m.config.Server.Host = src.Server.Host
	}
	if src.Server.Port != 0 {
		m.config.Server.Port = src.Server.Port
	}

	// Bot
	if src.Bot.Token != "" {
		m.config.Bot.Token = src.Bot.Token
	}
	if src.Bot.AdminChatID != "" {
		m.config.Bot.AdminChatID = src.Bot.AdminChatID
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}

	if src.LogLevel != "" {
		m.config.LogLevel = src.LogLevel
	}
}

// loadEnv loads configuration from environment variables. The variable
// names keep the contract of the original deployment (.env files mount
// straight in).
func (m *Manager) loadEnv() {
	setStr := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	setStr(&m.config.Sheets.GeneralID, "GOOGLE_SHEET_ID")
	setStr(&m.config.Sheets.TravelID, "SHEET_TRAVEL_ID")
	setStr(&m.config.Sheets.ProductsID, "SHEET_PRODUCTS_ID")
	setStr(&m.config.Sheets.CredentialsPath, "GOOGLE_SA_JSON_PATH")
	setStr(&m.config.Extraction.OpenAIKey, "OPENAI_API_KEY")
	setStr(&m.config.Extraction.Model, "OPENAI_MODEL")
	setStr(&m.config.Media.WhisperBackend, "WHISPER_BACKEND")
	setStr(&m.config.Media.WhisperModel, "WHISPER_MODEL")
	setStr(&m.config.Storage.TempDir, "TEMP_DIR")
	setStr(&m.config.Bot.Token, "TELEGRAM_TOKEN")
	setStr(&m.config.Bot.AdminChatID, "ADMIN_CHAT_ID")
	setStr(&m.config.Sequence.RedisAddr, "REELSHEET_REDIS_ADDR")
	setStr(&m.config.Storage.S3.Bucket, "REELSHEET_S3_BUCKET")
	setStr(&m.config.Telemetry.Endpoint, "REELSHEET_OTLP_ENDPOINT")
	setStr(&m.config.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("USE_LLM"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			m.config.Extraction.UseLLM = true
		default:
			m.config.Extraction.UseLLM = false
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			m.config.Server.Port = port
		}
	}

	// TempDir moved via env: keep backup and ledger inside it unless they
	// were set explicitly.
	if v := os.Getenv("TEMP_DIR"); v != "" {
		m.config.Storage.BackupPath = filepath.Join(v, "backup.csv")
		m.config.Storage.LedgerPath = filepath.Join(v, "ledger.db")
	}
}

// ensureDirs creates necessary directories. The backup directory must
// exist before any run so the fallback write cannot fail on a missing dir.
func (m *Manager) ensureDirs() {
	dirs := []string{
		m.config.Storage.TempDir,
		filepath.Dir(m.config.Storage.BackupPath),
		filepath.Dir(m.config.Storage.LedgerPath),
	}

	for _, dir := range dirs {
		os.MkdirAll(dir, 0755)
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the config file paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load("")
	})
	return globalManager
}
