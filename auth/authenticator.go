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

// This package authenticates API requests. A bearer token is a fernet token
// whose plaintext is a JSON-encoded User record; tokens are minted out of
// band with a key the service is configured to accept, so verification needs
// no network round trip.
package auth

import (
	"encoding/json"
	"time"

	"github.com/fernet/fernet-go"

	"github.com/ams-project/ams/config"
)

// This type accepts a valid access token in exchange for a user record.
type Authenticator struct {
	keys []*fernet.Key
	ttl  time.Duration
}

// Creates an authenticator from the keys in the service configuration.
func NewAuthenticator() (*Authenticator, error) {
	if len(config.Auth.Keys) == 0 {
		return nil, &NoKeysError{}
	}
	keys := make([]*fernet.Key, 0, len(config.Auth.Keys))
	for _, encoded := range config.Auth.Keys {
		decoded, err := fernet.DecodeKeys(encoded)
		if err != nil {
			return nil, err
		}
		keys = append(keys, decoded...)
	}
	// a negative ttl tells fernet to skip the timestamp check
	ttl := time.Duration(-1)
	if config.Auth.TokenTTL > 0 {
		ttl = time.Duration(config.Auth.TokenTTL) * time.Second
	}
	return &Authenticator{keys: keys, ttl: ttl}, nil
}

// given an access token, returns a User or an error
func (a *Authenticator) GetUser(accessToken string) (User, error) {
	plaintext := fernet.VerifyAndDecrypt([]byte(accessToken), a.ttl, a.keys)
	if plaintext == nil {
		return User{}, &InvalidTokenError{}
	}
	var user User
	if err := json.Unmarshal(plaintext, &user); err != nil {
		return User{}, &InvalidTokenError{}
	}
	return user, nil
}
