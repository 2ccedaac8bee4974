// Package config provides functionality for managing configuration options
// for the server and the client shell using command-line flags, a config
// file, a .env file and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Record backends.
const (
	BackendFirebase = "firebase"
	BackendPostgres = "postgres"
)

// Media hosts.
const (
	MediaCloudinary = "cloudinary"
	MediaS3         = "s3"
)

// Session backends.
const (
	SessionFile   = "file"
	SessionSQLite = "sqlite"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"port" yaml:"port"`
	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert" yaml:"tls_cert"`
	TLSKey  string `json:"tls_key" yaml:"tls_key"`

	// Backend selects the listing record store: "firebase" or "postgres".
	Backend string `json:"backend" yaml:"backend"`
	// DatabaseDSN holds the Postgres connection string.
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`
	// FirebaseURL is the realtime database root, e.g. https://app.firebaseio.com.
	FirebaseURL string `json:"firebase_url" yaml:"firebase_url"`
	// FirebaseSecret authorizes server-side database access.
	FirebaseSecret string `json:"firebase_secret" yaml:"firebase_secret"`
	// FirebaseAPIKey is the web API key used by the identity client.
	FirebaseAPIKey string `json:"firebase_api_key" yaml:"firebase_api_key"`
	// IdentityURL overrides the identity toolkit base URL.
	IdentityURL string `json:"identity_url" yaml:"identity_url"`

	// MediaHost selects the uploader: "cloudinary" or "s3".
	MediaHost    string `json:"media_host" yaml:"media_host"`
	UploadURL    string `json:"upload_url" yaml:"upload_url"`
	UploadPreset string `json:"upload_preset" yaml:"upload_preset"`
	S3           S3     `json:"s3" yaml:"s3"`

	// JWTSecret signs API tokens; TokenTTL bounds their lifetime.
	JWTSecret string        `json:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl" yaml:"token_ttl"`

	// SessionBackend selects "file" or "sqlite"; SessionPath is its location.
	SessionBackend string `json:"session_backend" yaml:"session_backend"`
	SessionPath    string `json:"session_path" yaml:"session_path"`

	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval"`
	ProgressTTL     time.Duration `json:"progress_ttl" yaml:"progress_ttl"`
	Retention       time.Duration `json:"retention" yaml:"retention"`
	LogLevel        string        `json:"log_level" yaml:"log_level"`

	// Config is the path to the Config file.
	Config string `json:"-" yaml:"-"`
}

// S3 configures the S3-compatible media host.
type S3 struct {
	Bucket          string `json:"bucket" yaml:"bucket"`
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// options holds the current configuration values.
var options = Default()

// Default returns the built-in defaults.
func Default() *Options {
	return &Options{
		Port:            "localhost:8080",
		Backend:         BackendFirebase,
		IdentityURL:     "https://identitytoolkit.googleapis.com/v1",
		MediaHost:       MediaCloudinary,
		UploadURL:       "https://api.cloudinary.com/v1_1/dazmz0qs0/auto/upload",
		TokenTTL:        24 * time.Hour,
		SessionBackend:  SessionFile,
		SessionPath:     "swyppy_prefs.json",
		RefreshInterval: time.Minute,
		ProgressTTL:     10 * time.Minute,
		Retention:       30 * 24 * time.Hour,
		LogLevel:        "Info",
		Config:          "config.json",
	}
}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", options.Port, "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "postgres dsn")
	flag.StringVar(&options.Backend, "backend", options.Backend, "record backend: firebase | postgres")
	flag.StringVar(&options.MediaHost, "media", options.MediaHost, "media host: cloudinary | s3")
	flag.StringVar(&options.SessionPath, "session", options.SessionPath, "path to the local session store")
	flag.StringVar(&options.LogLevel, "log", options.LogLevel, "log level")
	flag.StringVar(&options.Config, "config", options.Config, "path to config file")
	flag.StringVar(&options.Config, "c", options.Config, "path to config file (shorthand)")
}

// Parse parses the command-line flags, the .env file, the config file and
// environment variables, in that order of increasing precedence. It returns
// a pointer to the Options struct containing the parsed configuration values.
func Parse() *Options {
	flag.Parse()
	_ = godotenv.Load()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			if err := LoadFile(options.Config, options); err != nil {
				log.Fatalf("error while loading config file: %v", err)
			}
		}
	}

	ApplyEnv(options)
	return options
}

// LoadFile decodes a JSON or YAML config file into opts. The format is
// chosen by extension; anything other than .yaml/.yml is read as JSON.
func LoadFile(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, opts); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, opts); err != nil {
			return fmt.Errorf("parse json config: %w", err)
		}
	}
	return nil
}

// ApplyEnv overrides opts with any environment variables that are set.
func ApplyEnv(opts *Options) {
	setString(&opts.Port, "SERVER_ADDRESS")
	setString(&opts.TLSCert, "TLS_CERT")
	setString(&opts.TLSKey, "TLS_KEY")
	setString(&opts.Backend, "RECORD_BACKEND")
	setString(&opts.DatabaseDSN, "DATABASE_DSN")
	setString(&opts.FirebaseURL, "FIREBASE_URL")
	setString(&opts.FirebaseSecret, "FIREBASE_SECRET")
	setString(&opts.FirebaseAPIKey, "FIREBASE_API_KEY")
	setString(&opts.IdentityURL, "IDENTITY_URL")
	setString(&opts.MediaHost, "MEDIA_HOST")
	setString(&opts.UploadURL, "UPLOAD_URL")
	setString(&opts.UploadPreset, "UPLOAD_PRESET")
	setString(&opts.S3.Bucket, "S3_BUCKET")
	setString(&opts.S3.Region, "S3_REGION")
	setString(&opts.S3.Endpoint, "S3_ENDPOINT")
	setString(&opts.S3.AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&opts.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setString(&opts.JWTSecret, "JWT_SECRET")
	setString(&opts.SessionBackend, "SESSION_BACKEND")
	setString(&opts.SessionPath, "SESSION_PATH")
	setString(&opts.LogLevel, "LOG_LEVEL")
	setDuration(&opts.TokenTTL, "TOKEN_TTL")
	setDuration(&opts.RefreshInterval, "REFRESH_INTERVAL")
	setDuration(&opts.ProgressTTL, "PROGRESS_TTL")
	setDuration(&opts.Retention, "RETENTION")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, key string) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	if d, err := time.ParseDuration(val); err == nil {
		*dst = d
		return
	}
	// bare integers are seconds
	if secs, err := strconv.Atoi(val); err == nil {
		*dst = time.Duration(secs) * time.Second
	}
}
