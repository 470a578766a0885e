package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Vision    VisionConfig    `yaml:"vision"`
	Matching  MatchingConfig  `yaml:"matching"`
	LiveScan  LiveScanConfig  `yaml:"live_scan"`
	Upload    UploadConfig    `yaml:"upload"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// VisionConfig configures the C1-C4 detection/pose/quality/extraction stages.
type VisionConfig struct {
	ModelsDir      string  `yaml:"models_dir"`
	EmbeddingModel string  `yaml:"embedding_model"`
	MTCNNPNet      string  `yaml:"mtcnn_pnet_model"`
	MTCNNRNet      string  `yaml:"mtcnn_rnet_model"`
	MTCNNONet      string  `yaml:"mtcnn_onet_model"`
	HaarCascade    string  `yaml:"haar_cascade_path"`
	HaarProfileCascade string `yaml:"haar_profile_cascade_path"`
	PigoCascade    string  `yaml:"pigo_cascade_path"`
	DNNModel       string  `yaml:"dnn_model_path"`
	DNNConfig      string  `yaml:"dnn_config_path"`
	DNNConfidence  float64 `yaml:"dnn_confidence"`
	MTCNNMinFaceSize   int        `yaml:"mtcnn_min_face_size"`
	MTCNNPyramidFactor float64    `yaml:"mtcnn_pyramid_factor"`
	MTCNNThresholds    [3]float64 `yaml:"mtcnn_thresholds"`
	WorkerCount    int     `yaml:"worker_count"`
}

// MatchingConfig configures C5/C6's identity-matching behavior.
type MatchingConfig struct {
	MatchThreshold     float64            `yaml:"match_threshold"`
	MaxAnglesPerPerson int                `yaml:"max_angles_per_person"`
	CacheTTLSeconds    int                `yaml:"cache_ttl_seconds"`
	AngleWeights       map[string]float64 `yaml:"angle_weights"`
}

// LiveScanConfig configures C8's webcam capture loop.
type LiveScanConfig struct {
	MinLiveQuality float64 `yaml:"min_live_quality"`
	CameraIndex    int     `yaml:"camera_index"`
	SampleEveryNth int     `yaml:"sample_every_nth_frame"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type UploadConfig struct {
	MaxUploadBytes   int64    `yaml:"max_upload_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 6
	}
	if cfg.Vision.DNNConfidence == 0 {
		cfg.Vision.DNNConfidence = 0.30
	}
	if cfg.Vision.MTCNNMinFaceSize == 0 {
		cfg.Vision.MTCNNMinFaceSize = 20
	}
	if cfg.Vision.MTCNNPyramidFactor == 0 {
		cfg.Vision.MTCNNPyramidFactor = 0.709
	}
	if cfg.Vision.MTCNNThresholds == ([3]float64{}) {
		cfg.Vision.MTCNNThresholds = [3]float64{0.60, 0.70, 0.70}
	}
	if cfg.Matching.MatchThreshold == 0 {
		cfg.Matching.MatchThreshold = 0.60
	}
	if cfg.Matching.MaxAnglesPerPerson == 0 {
		cfg.Matching.MaxAnglesPerPerson = 5
	}
	if cfg.Matching.CacheTTLSeconds == 0 {
		cfg.Matching.CacheTTLSeconds = 300
	}
	if cfg.Matching.AngleWeights == nil {
		cfg.Matching.AngleWeights = map[string]float64{
			"frontal": 1.0, "left_45": 0.8, "right_45": 0.8, "left_90": 0.6, "right_90": 0.6,
		}
	}
	if cfg.LiveScan.MinLiveQuality == 0 {
		cfg.LiveScan.MinLiveQuality = 0.5
	}
	if cfg.LiveScan.SampleEveryNth == 0 {
		cfg.LiveScan.SampleEveryNth = 5
	}
	if cfg.LiveScan.TimeoutSeconds == 0 {
		cfg.LiveScan.TimeoutSeconds = 30
	}
	if cfg.Upload.MaxUploadBytes == 0 {
		cfg.Upload.MaxUploadBytes = 16 * 1024 * 1024
	}
	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FC_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FC_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FC_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FC_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FC_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FC_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FC_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FC_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FC_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FC_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FC_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FC_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FC_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.MatchThreshold = f
		}
	}
	if v := os.Getenv("FC_MIN_LIVE_QUALITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LiveScan.MinLiveQuality = f
		}
	}
	if v := os.Getenv("FC_ALLOWED_EXTENSIONS"); v != "" {
		cfg.Upload.AllowedExtensions = strings.Split(v, ",")
	}
}
