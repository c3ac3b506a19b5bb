package config

import (
	"fmt"
	"net/url"
)

// An object store holds the actual bytes for submitted files. The service
// never moves bytes itself--it only checks that objects exist before an
// analysis may be published.
type storageConfig struct {
	// the storage provider ("local" or "https")
	Provider string `yaml:"provider"`
	// root directory for the "local" provider
	Root string `yaml:"root"`
	// base URL for the "https" provider (objects at <baseUrl>/<objectId>)
	BaseUrl string `yaml:"baseUrl"`
	// number of attempts for existence checks before giving up
	MaxRetries int `yaml:"maxRetries"`
}

// This helper validates the given storage parameters, returning an error
// indicating success or failure.
func validateStorageParameters(params storageConfig) error {
	switch params.Provider {
	case "local":
		if params.Root == "" {
			return fmt.Errorf("No root directory was given for local storage!")
		}
	case "https":
		u, err := url.Parse(params.BaseUrl)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("Invalid base URL for https storage: %s", params.BaseUrl)
		}
	default:
		return fmt.Errorf("Invalid storage provider: %s", params.Provider)
	}
	if params.MaxRetries <= 0 {
		return fmt.Errorf("Invalid maxRetries: %d (must be positive)",
			params.MaxRetries)
	}
	return nil
}
