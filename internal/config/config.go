package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "AMM"

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Store        string
	SQLitePath   string
	PGDSN        string
	ProgramID    common.Address
	Journal      string
	RPCURL       string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
	Tokens       map[string]common.Address
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"store":         StoreSQLite,
		"sqlite-path":   "./data/amm.db",
		"program-id":    "0x00000000000000000000000000000000000a11ce",
		"journal":       "./data/receipts.jsonl",
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return Config{}, err
	}

	programID := v.GetString("program-id")
	if !common.IsHexAddress(programID) {
		return Config{}, fmt.Errorf("invalid program id: %s", programID)
	}

	tokens := make(map[string]common.Address)
	for name, addr := range getStringMap(v, "tokens") {
		if !common.IsHexAddress(addr) {
			return Config{}, fmt.Errorf("invalid address for token %s: %s", name, addr)
		}
		tokens[strings.ToLower(name)] = common.HexToAddress(addr)
	}

	cfg := Config{
		Store:        strings.ToLower(v.GetString("store")),
		SQLitePath:   v.GetString("sqlite-path"),
		PGDSN:        v.GetString("pg-dsn"),
		ProgramID:    common.HexToAddress(programID),
		Journal:      v.GetString("journal"),
		RPCURL:       v.GetString("rpc"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
		Tokens:       tokens,
	}

	switch cfg.Store {
	case StoreSQLite, StorePostgres, StoreMemory:
	default:
		return Config{}, fmt.Errorf("unknown store %q", cfg.Store)
	}

	return cfg, nil
}

// ResolveToken accepts a configured token name or a hex address.
func (c Config) ResolveToken(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if addr, ok := c.Tokens[strings.ToLower(input)]; ok {
		return addr, nil
	}
	return ParseAddress(input)
}

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
