package config

type schemasConfig struct {
	// an optional directory of <analysisType>.json schema documents
	// registered at startup (each becomes version 1 if its type is new)
	Directory string `yaml:"directory"`
}
