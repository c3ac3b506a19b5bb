package config

type authConfig struct {
	// set to true to require bearer tokens on API requests
	Enabled bool `yaml:"enabled"`
	// base64-encoded fernet keys accepted for token verification
	// DO NOT STORE THESE IN A CONFIG FILE! Use environment variables instead.
	Keys []string `yaml:"keys"`
	// maximum accepted token age in seconds (0 means no limit)
	TokenTTL int `yaml:"tokenTtl"`
}
