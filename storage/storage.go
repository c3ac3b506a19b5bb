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

// This package answers one question about the object store holding submitted
// file bytes: does an object exist? The service never moves bytes itself,
// but it refuses to publish an analysis whose files aren't actually there.
package storage

import (
	"context"
	"time"

	"github.com/ams-project/ams/config"
)

// A Provider checks for the presence of objects in one kind of object store.
type Provider interface {
	// returns true if the object with the given id exists; an error means
	// the question could not be answered, not that the object is absent
	Exists(ctx context.Context, objectId string) (bool, error)
}

// We maintain a table of provider instances, mapped by name. New provider
// types register themselves via RegisterProvider, keeping the set of
// supported object stores open-ended.
var createProviderFuncs = map[string]func() (Provider, error){
	"local": NewLocalProvider,
	"https": NewHttpsProvider,
}

// Registers a function that creates an object store provider with the given
// name, making it available in configurations.
func RegisterProvider(provider string, createProvider func() (Provider, error)) {
	createProviderFuncs[provider] = createProvider
}

// creates the provider selected by the service configuration
func NewProvider() (Provider, error) {
	createProvider, found := createProviderFuncs[config.Storage.Provider]
	if !found {
		return nil, &UnknownProviderError{Provider: config.Storage.Provider}
	}
	return createProvider()
}

// Checks for the object with the given id, retrying transient check failures
// up to the configured number of attempts with a short pause between them.
// A definitive absent answer is returned immediately--absence is an answer,
// not a fault.
func ExistsWithRetry(ctx context.Context, provider Provider, objectId string) (bool, error) {
	var exists bool
	var err error
	for attempt := 0; attempt < config.Storage.MaxRetries; attempt++ {
		exists, err = provider.Exists(ctx, objectId)
		if err == nil {
			return exists, nil
		}
		select {
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, err
}
