package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Broker        BrokerConfig        `mapstructure:"broker"`
	Autoscaler    AutoscalerConfig    `mapstructure:"autoscaler"`
	Pool          PoolConfig          `mapstructure:"pool"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	DryRun        bool                `mapstructure:"dry_run"`
	LogLevel      string              `mapstructure:"log_level"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	APIKey       string        `mapstructure:"api_key"`
	EnableAuth   bool          `mapstructure:"enable_auth"`
}

type BrokerConfig struct {
	URL            string        `mapstructure:"url"`
	Queue          string        `mapstructure:"queue"`
	Token          string        `mapstructure:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type AutoscalerConfig struct {
	MinWorkers              int           `mapstructure:"min_workers"`
	MaxWorkers              int           `mapstructure:"max_workers"`
	TargetTasksPerWorker    int           `mapstructure:"target_tasks_per_worker"`
	ScaleDownQueueThreshold int           `mapstructure:"scale_down_queue_threshold"`
	Cooldown                time.Duration `mapstructure:"cooldown"`
	Enabled                 bool          `mapstructure:"enabled"`
	CheckInterval           time.Duration `mapstructure:"check_interval"`
}

type PoolConfig struct {
	Type   string       `mapstructure:"type"`
	Docker DockerConfig `mapstructure:"docker"`
	AWS    AWSConfig    `mapstructure:"aws"`
}

type DockerConfig struct {
	Host        string            `mapstructure:"host"`
	Image       string            `mapstructure:"image"`
	Network     string            `mapstructure:"network"`
	CPULimit    float64           `mapstructure:"cpu_limit"`
	MemoryLimit int64             `mapstructure:"memory_limit"`
	Labels      map[string]string `mapstructure:"labels"`
	Volumes     []string          `mapstructure:"volumes"`
	PullPolicy  string            `mapstructure:"pull_policy"`
}

type AWSConfig struct {
	Region             string            `mapstructure:"region"`
	InstanceType       string            `mapstructure:"instance_type"`
	AMI                string            `mapstructure:"ami"`
	SubnetID           string            `mapstructure:"subnet_id"`
	SecurityGroupIDs   []string          `mapstructure:"security_group_ids"`
	KeyName            string            `mapstructure:"key_name"`
	IAMInstanceProfile string            `mapstructure:"iam_instance_profile"`
	UseSpot            bool              `mapstructure:"use_spot"`
	SpotMaxPrice       string            `mapstructure:"spot_max_price"`
	Tags               map[string]string `mapstructure:"tags"`
	UserDataScript     string            `mapstructure:"user_data_script"`
	VolumeSize         int32             `mapstructure:"volume_size"`
	VolumeType         string            `mapstructure:"volume_type"`
}

type ObservabilityConfig struct {
	EnableMetrics   bool   `mapstructure:"enable_metrics"`
	MetricsPath     string `mapstructure:"metrics_path"`
	HealthCheckPath string `mapstructure:"health_check_path"`
	ReadinessPath   string `mapstructure:"readiness_path"`
}

// Load reads configuration from environment variables and optional config file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("TALOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.enable_auth", false)
	v.SetDefault("server.api_key", "")

	// Broker defaults
	v.SetDefault("broker.url", "")
	v.SetDefault("broker.queue", "")
	v.SetDefault("broker.token", "")
	v.SetDefault("broker.request_timeout", 10*time.Second)

	// Autoscaler defaults
	v.SetDefault("autoscaler.min_workers", 1)
	v.SetDefault("autoscaler.max_workers", 10)
	v.SetDefault("autoscaler.target_tasks_per_worker", 10)
	v.SetDefault("autoscaler.scale_down_queue_threshold", 0)
	v.SetDefault("autoscaler.cooldown", 60*time.Second)
	v.SetDefault("autoscaler.enabled", true)
	v.SetDefault("autoscaler.check_interval", 30*time.Second)

	// Pool defaults
	v.SetDefault("pool.type", "docker")
	v.SetDefault("pool.docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("pool.docker.image", "")
	v.SetDefault("pool.docker.network", "bridge")
	v.SetDefault("pool.docker.cpu_limit", 1.0)
	v.SetDefault("pool.docker.memory_limit", 2147483648) // 2GB
	v.SetDefault("pool.docker.pull_policy", "always")
	v.SetDefault("pool.aws.region", "us-east-1")
	v.SetDefault("pool.aws.ami", "")
	v.SetDefault("pool.aws.subnet_id", "")
	v.SetDefault("pool.aws.instance_type", "t3.medium")
	v.SetDefault("pool.aws.use_spot", true)
	v.SetDefault("pool.aws.volume_size", 30)
	v.SetDefault("pool.aws.volume_type", "gp3")

	// Observability defaults
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.metrics_path", "/metrics")
	v.SetDefault("observability.health_check_path", "/health")
	v.SetDefault("observability.readiness_path", "/ready")

	// General defaults
	v.SetDefault("dry_run", false)
	v.SetDefault("log_level", "info")
}

func (c *Config) Validate() error {
	// Broker validation
	if c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required")
	}
	if c.Broker.Queue == "" {
		return fmt.Errorf("broker.queue is required")
	}
	if c.Broker.RequestTimeout <= 0 {
		return fmt.Errorf("broker.request_timeout must be > 0")
	}

	// Autoscaler validation
	if c.Autoscaler.MinWorkers < 1 {
		return fmt.Errorf("autoscaler.min_workers must be >= 1")
	}
	if c.Autoscaler.MaxWorkers < c.Autoscaler.MinWorkers {
		return fmt.Errorf("autoscaler.max_workers must be >= autoscaler.min_workers")
	}
	if c.Autoscaler.TargetTasksPerWorker < 1 {
		return fmt.Errorf("autoscaler.target_tasks_per_worker must be >= 1")
	}
	if c.Autoscaler.ScaleDownQueueThreshold < 0 {
		return fmt.Errorf("autoscaler.scale_down_queue_threshold must be >= 0")
	}
	if c.Autoscaler.Cooldown < 0 {
		return fmt.Errorf("autoscaler.cooldown must be >= 0")
	}
	if c.Autoscaler.CheckInterval <= 0 {
		return fmt.Errorf("autoscaler.check_interval must be > 0")
	}

	// Pool validation
	if c.Pool.Type != "docker" && c.Pool.Type != "ec2" {
		return fmt.Errorf("pool.type must be either 'docker' or 'ec2'")
	}

	if c.Pool.Type == "docker" {
		if c.Pool.Docker.Image == "" {
			return fmt.Errorf("pool.docker.image is required when using docker pool")
		}
	}

	if c.Pool.Type == "ec2" {
		if c.Pool.AWS.Region == "" {
			return fmt.Errorf("pool.aws.region is required when using ec2 pool")
		}
		if c.Pool.AWS.AMI == "" {
			return fmt.Errorf("pool.aws.ami is required when using ec2 pool")
		}
		if c.Pool.AWS.SubnetID == "" {
			return fmt.Errorf("pool.aws.subnet_id is required when using ec2 pool")
		}
		if len(c.Pool.AWS.SecurityGroupIDs) == 0 {
			return fmt.Errorf("pool.aws.security_group_ids is required when using ec2 pool")
		}
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.EnableAuth && c.Server.APIKey == "" {
		return fmt.Errorf("server.api_key is required when server.enable_auth is true")
	}

	return nil
}
