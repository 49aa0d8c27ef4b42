package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the full service configuration. Zero values are filled from Default.
type Config struct {
	Server struct {
		Port              int
		ReadHeaderTimeout time.Duration
		ShutdownTimeout   time.Duration
		AllowedOrigins    []string
	}

	Log struct {
		Level  string
		Format string
	}

	Engine struct {
		DefaultTimeLimit time.Duration
		FreeTextTopN     int
		JoinCodeAttempts int
		SubscriberBuffer int
	}

	Store struct {
		// Driver is one of memory, redis, postgres or sqlite.
		Driver string
	}

	Redis struct {
		Addrs     []string
		Pass      string
		Prefix    string
		Retention time.Duration
	}

	Postgres struct {
		DSN string
	}

	SQLite struct {
		Path string
	}

	Quiz struct {
		TTL  time.Duration
		File string
	}
}

func Default() Config {
	var c Config
	c.Server.Port = 8080
	c.Server.ReadHeaderTimeout = 10 * time.Second
	c.Server.ShutdownTimeout = 5 * time.Second
	c.Server.AllowedOrigins = []string{"*"}
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.Engine.DefaultTimeLimit = 30 * time.Second
	c.Engine.FreeTextTopN = 50
	c.Engine.JoinCodeAttempts = 10
	c.Engine.SubscriberBuffer = 64
	c.Store.Driver = "memory"
	c.Redis.Prefix = "quiz"
	c.Redis.Retention = 24 * time.Hour
	c.SQLite.Path = "quiz.db"
	c.Quiz.TTL = 10 * time.Minute
	return c
}

// Load config from file into the config struct, config must be a pointer to the config struct.
// Values already set on config act as defaults; environment variables (SERVER_PORT,
// STORE_DRIVER, REDIS_ADDRS, ...) override the file.
func Load(file string, config any) error {
	v := viper.New()

	if err := setDefaults(v, "", config); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	v.SetConfigFile(file)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config from file %s: %v", file, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

// setDefaults registers every leaf of in under its dotted key. Defaults survive ReadInConfig,
// which replaces merged config, and AutomaticEnv only consults keys viper already knows.
func setDefaults(v *viper.Viper, prefix string, in any) error {
	m := make(map[string]any)
	if err := mapstructure.Decode(in, &m); err != nil {
		return err
	}

	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if _, ok := val.(map[string]any); ok || reflect.Indirect(reflect.ValueOf(val)).Kind() == reflect.Struct {
			if err := setDefaults(v, key, val); err != nil {
				return err
			}
			continue
		}
		v.SetDefault(key, val)
	}
	return nil
}
