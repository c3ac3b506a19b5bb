package config

// The metadata database holds all registered studies, entities, analyses,
// uploads, and analysis type schemas.
type databaseConfig struct {
	// path to the sqlite database file (default: <dataDirectory>/ams.db)
	Path string `yaml:"path"`
}
