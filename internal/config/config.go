package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Chain     ChainConfig     `yaml:"chain"`
	Payment   PaymentConfig   `yaml:"payment"`
	AI        AIConfig        `yaml:"ai"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

// ChainConfig describes the network the service accepts payments on.
type ChainConfig struct {
	ChainID     int64  `yaml:"chain_id"`
	Name        string `yaml:"name"`
	RPCURL      string `yaml:"rpc_url"`
	ExplorerAPI string `yaml:"explorer_api"`
}

// PaymentConfig is the fixed bundle pricing. PricePerBundle is a decimal
// string of the native unit ("0.1" STT), converted to wei at the edge.
type PaymentConfig struct {
	RecipientAddress  string `yaml:"recipient_address"`
	PricePerBundle    string `yaml:"price_per_bundle"`
	MessagesPerBundle int    `yaml:"messages_per_bundle"`
	TokenSymbol       string `yaml:"token_symbol"`
	TokenDecimals     int    `yaml:"token_decimals"`
}

type AIConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	MaxCallsPerMinute int `yaml:"max_calls_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the Somnia Shannon testnet parameters the service ships
// with. A config file overrides individual fields.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Env:  "development",
		},
		Chain: ChainConfig{
			ChainID:     50312,
			Name:        "Somnia Testnet",
			RPCURL:      "https://dream-rpc.somnia.network",
			ExplorerAPI: "https://shannon-explorer.somnia.network/api",
		},
		Payment: PaymentConfig{
			RecipientAddress:  "0xE867be6751b23Bd389792AC080F604C4608a8637",
			PricePerBundle:    "0.1",
			MessagesPerBundle: 30,
			TokenSymbol:       "STT",
			TokenDecimals:     18,
		},
		AI: AIConfig{
			BaseURL:   "https://api.aimlapi.com",
			Model:     "gpt-4o",
			MaxTokens: 1000,
		},
		RateLimit: RateLimitConfig{
			MaxCallsPerMinute: 60,
		},
	}
}
