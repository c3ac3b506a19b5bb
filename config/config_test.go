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

// These tests must be run serially, since the configuration is global.

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// a valid configuration
const validConfig string = `
service:
  name: ams
  port: 8081
  maxConnections: 50
  dataDirectory: /var/lib/ams
database:
  path: ams.db
storage:
  provider: https
  baseUrl: https://objects.example.org/v1
  maxRetries: 5
schemas:
  directory: /etc/ams/schemas
`

// runs all tests serially
func TestRunner(t *testing.T) {
	tester := SerialTests{Test: t}
	tester.TestValidConfig()
	tester.TestDefaults()
	tester.TestEnvironmentExpansion()
	tester.TestInvalidServiceParameters()
	tester.TestInvalidStorageParameters()
	tester.TestAuthRequiresKeys()
	tester.TestUnparseableYaml()
}

// To run the tests serially, we attach them to a SerialTests type and
// have them run by a single test runner.
type SerialTests struct{ Test *testing.T }

func (t *SerialTests) TestValidConfig() {
	assert := assert.New(t.Test)

	err := Init([]byte(validConfig))
	assert.Nil(err)
	assert.Equal("ams", Service.Name)
	assert.Equal(8081, Service.Port)
	assert.Equal(50, Service.MaxConnections)
	assert.Equal("/var/lib/ams", Service.DataDirectory)
	assert.Equal("ams.db", Database.Path)
	assert.Equal("https", Storage.Provider)
	assert.Equal("https://objects.example.org/v1", Storage.BaseUrl)
	assert.Equal(5, Storage.MaxRetries)
	assert.Equal("/etc/ams/schemas", Schemas.Directory)
	assert.False(Auth.Enabled)
}

func (t *SerialTests) TestDefaults() {
	assert := assert.New(t.Test)

	err := Init([]byte(`
service:
  name: ams
  dataDirectory: /var/lib/ams
storage:
  root: /var/lib/ams/objects
`))
	assert.Nil(err)
	assert.Equal(8080, Service.Port)
	assert.Equal(100, Service.MaxConnections)
	assert.Equal("local", Storage.Provider)
	assert.Equal(3, Storage.MaxRetries)
}

func (t *SerialTests) TestEnvironmentExpansion() {
	assert := assert.New(t.Test)

	os.Setenv("AMS_TEST_DATA_DIR", "/data/ams")
	defer os.Unsetenv("AMS_TEST_DATA_DIR")
	err := Init([]byte(`
service:
  name: ams
  dataDirectory: ${AMS_TEST_DATA_DIR}
storage:
  root: ${AMS_TEST_DATA_DIR}/objects
`))
	assert.Nil(err)
	assert.Equal("/data/ams", Service.DataDirectory)
	assert.Equal("/data/ams/objects", Storage.Root)
}

func (t *SerialTests) TestInvalidServiceParameters() {
	assert := assert.New(t.Test)

	// out-of-range port
	err := Init([]byte(`
service:
  name: ams
  port: 123456
  dataDirectory: /var/lib/ams
storage:
  root: /var/lib/ams/objects
`))
	assert.NotNil(err)

	// no data directory
	err = Init([]byte(`
service:
  name: ams
storage:
  root: /var/lib/ams/objects
`))
	assert.NotNil(err)
}

func (t *SerialTests) TestInvalidStorageParameters() {
	assert := assert.New(t.Test)

	// local storage needs a root
	err := Init([]byte(`
service:
  name: ams
  dataDirectory: /var/lib/ams
storage:
  provider: local
`))
	assert.NotNil(err)

	// https storage needs an https base URL
	err = Init([]byte(`
service:
  name: ams
  dataDirectory: /var/lib/ams
storage:
  provider: https
  baseUrl: http://objects.example.org
`))
	assert.NotNil(err)

	// unknown provider
	err = Init([]byte(`
service:
  name: ams
  dataDirectory: /var/lib/ams
storage:
  provider: punchcards
`))
	assert.NotNil(err)
}

func (t *SerialTests) TestAuthRequiresKeys() {
	assert := assert.New(t.Test)

	err := Init([]byte(`
service:
  name: ams
  dataDirectory: /var/lib/ams
storage:
  root: /var/lib/ams/objects
auth:
  enabled: true
`))
	assert.NotNil(err)
}

func (t *SerialTests) TestUnparseableYaml() {
	assert := assert.New(t.Test)

	err := Init([]byte(`service: [not: valid`))
	assert.NotNil(err)
}
