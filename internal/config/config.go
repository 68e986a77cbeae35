package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultListenAddr = ":3000"
	DefaultSiteName   = "PeerLoop"
	DefaultLocale     = "en"
)

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	ReplicaDsn      string `mapstructure:"replicaDsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
}

type MailConfig struct {
	Backend string     `mapstructure:"backend"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type Config struct {
	Debug        bool        `mapstructure:"debug"`
	SiteName     string      `mapstructure:"siteName"`
	BaseURL      string      `mapstructure:"baseURL"`
	MasterKey    string      `mapstructure:"masterKey"`
	ListenAddr   string      `mapstructure:"listenAddr"`
	AllowOrigins []string    `mapstructure:"allowOrigins"`
	Redis        RedisConfig `mapstructure:"redis"`
	Mail         MailConfig  `mapstructure:"mail"`
	MySQL        MySQLConfig `mapstructure:"mysql"`
}

func (c *Config) Sanitize() error {
	if c.MasterKey == "" {
		return errors.New("masterKey is required")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SiteName == "" {
		c.SiteName = DefaultSiteName
	}
	// the top-level sender address is the default for every backend
	if c.Mail.SMTP.From == "" {
		c.Mail.SMTP.From = c.Mail.From
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
