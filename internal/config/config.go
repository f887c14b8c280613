package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"prod"`
	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	Health  HealthConfig  `yaml:"health"`
	Storage StorageConfig `yaml:"storage"`
	Bus     BusConfig     `yaml:"bus"`
	Session SessionConfig `yaml:"session"`
	Twin    TwinConfig    `yaml:"twin"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

type HTTPConfig struct {
	Address      string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":4000"`
	StaticDir    string        `yaml:"static_dir" env:"HTTP_STATIC_DIR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"30s"`
}

type HealthConfig struct {
	Address string `yaml:"address" env:"HEALTH_ADDRESS" env-default:":8080"`
}

type StorageConfig struct {
	// Driver is either "sqlite3" or "mysql".
	Driver       string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite3"`
	DSN          string `yaml:"dsn" env:"DB_DSN" env-default:"/var/lib/solarbridge/readings.db"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns int    `yaml:"max_idle_conns" env-default:"5"`
}

type BusConfig struct {
	URL               string        `yaml:"url" env:"MQTT_URL" env-default:"tcp://localhost:1883"`
	ClientID          string        `yaml:"client_id" env:"MQTT_CLIENT_ID" env-default:"solarbridge"`
	Username          string        `yaml:"username" env:"MQTT_USERNAME"`
	Password          string        `yaml:"password" env:"MQTT_PASSWORD"`
	QoS               byte          `yaml:"qos" env-default:"0"`
	ControlQoS        byte          `yaml:"control_qos" env-default:"1"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" env-default:"10s"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval" env-default:"1s"`
	Subjects          Subjects      `yaml:"subjects"`
}

type Subjects struct {
	PowerMeter     string `yaml:"power_meter" env:"MQTT_TOPIC_POWER_METER" env-default:"sensor/power-meter"`
	Light          string `yaml:"light" env:"MQTT_TOPIC_LIGHT" env-default:"sensor/light"`
	Climate        string `yaml:"climate" env:"MQTT_TOPIC_CLIMATE" env-default:"sensor/climate"`
	Irradiance     string `yaml:"irradiance" env:"MQTT_TOPIC_IRRADIANCE" env-default:"sensor/irradiance"`
	EstimatedPower string `yaml:"estimated_power" env:"MQTT_TOPIC_ESTIMATED_POWER" env-default:"sensor/estimated-power"`
	State          string `yaml:"state" env:"MQTT_TOPIC_STATE" env-default:"sensor/state"`
	Control        string `yaml:"control" env:"MQTT_PINS_TOPIC" env-default:"actuator/pins"`
}

// Inbound lists the subjects the bridge subscribes to.
func (s Subjects) Inbound() []string {
	return []string{s.PowerMeter, s.Light, s.Climate, s.Irradiance, s.EstimatedPower}
}

type SessionConfig struct {
	Enabled bool   `yaml:"enabled" env:"SESSION_ENABLED" env-default:"true"`
	AuthDir string `yaml:"auth_dir" env:"AUTH_DIR" env-default:"/data/whatsapp_auth"`
}

func MustLoad(configPath string) *Config {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		panic("failed to read config: " + err.Error())
	}

	return cfg
}

// Load reads the YAML file at configPath with environment overrides. A
// missing file is not an error: the configuration then comes from the
// environment and defaults alone.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
