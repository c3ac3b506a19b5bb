// Copyright (c) 2024 The AMS Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// a type with service configuration parameters
type serviceConfig struct {
	// a name for this service instance (used in data file names)
	Name string `json:"name" yaml:"name"`
	// port on which the service listens
	Port int `json:"port" yaml:"port"`
	// maximum number of allowed incoming connections
	MaxConnections int `json:"maxConnections" yaml:"maxConnections"`
	// directory in which the service keeps its databases and journal
	DataDirectory string `json:"dataDirectory" yaml:"dataDirectory"`
}

// global config variables
var Service serviceConfig
var Database databaseConfig
var Storage storageConfig
var Auth authConfig
var Schemas schemasConfig

// This struct performs the unmarshalling from the YAML config file and then
// copies its fields to the globals above.
type configFile struct {
	Service  serviceConfig  `yaml:"service"`
	Database databaseConfig `yaml:"database"`
	Storage  storageConfig  `yaml:"storage"`
	Auth     authConfig     `yaml:"auth"`
	Schemas  schemasConfig  `yaml:"schemas"`
}

// This helper reads a configuration from YAML byte data, returning an error
// indicating success or failure. All environment variables of the form
// ${ENV_VAR} are expanded.
func readConfig(bytes []byte) error {
	// before we do anything else, expand any provided environment variables
	bytes = []byte(os.ExpandEnv(string(bytes)))

	var conf configFile
	conf.Service.Port = 8080
	conf.Service.MaxConnections = 100
	conf.Storage.Provider = "local"
	conf.Storage.MaxRetries = 3
	err := yaml.Unmarshal(bytes, &conf)
	if err != nil {
		log.Printf("Couldn't parse configuration data: %s\n", err)
		return err
	}

	// copy the config data into place
	Service = conf.Service
	Database = conf.Database
	Storage = conf.Storage
	Auth = conf.Auth
	Schemas = conf.Schemas

	return err
}

// This helper validates the given service parameters, returning an
// error indicating success or failure.
func validateServiceParameters(params serviceConfig) error {
	if params.Port < 0 || params.Port > 65535 {
		return fmt.Errorf("Invalid port: %d (must be 0-65535)", params.Port)
	}
	if params.MaxConnections <= 0 {
		return fmt.Errorf("Invalid maxConnections: %d (must be positive)",
			params.MaxConnections)
	}
	if params.DataDirectory == "" {
		return fmt.Errorf("No data directory was specified!")
	}
	return nil
}

// This helper validates the configuration as a whole, returning an error that
// indicates success or failure.
func validateConfig() error {
	err := validateServiceParameters(Service)
	if err != nil {
		return err
	}
	if err = validateStorageParameters(Storage); err != nil {
		return err
	}
	if Auth.Enabled && len(Auth.Keys) == 0 {
		return fmt.Errorf("Authentication is enabled but no keys were provided!")
	}
	return nil
}

// Initializes the analysis metadata service configuration using the given
// YAML byte data.
func Init(yamlData []byte) error {

	// read the configuration from our YAML data
	err := readConfig(yamlData)
	if err != nil {
		return err
	}

	// validate the configuration
	err = validateConfig()
	return err
}
