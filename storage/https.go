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

package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/StalkR/hsts"

	"github.com/ams-project/ams/config"
)

// a provider for objects served over HTTPS (objects live at
// <baseUrl>/<objectId> and are probed with HEAD requests)
type httpsProvider struct {
	baseUrl string
	client  http.Client
}

func NewHttpsProvider() (Provider, error) {
	return &httpsProvider{
		baseUrl: strings.TrimSuffix(config.Storage.BaseUrl, "/"),
		client:  secureHttpClient(10 * time.Second),
	}, nil
}

// Here's a secure HTTP client for talking to object stores. It sets a
// reasonable timeout and enables HTTP Strict Transport Security (HSTS).
func secureHttpClient(timeout time.Duration) http.Client {
	client := http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme == "http" {
				return &DowngradedRedirectError{
					Endpoint: fmt.Sprintf("%s%s", req.URL.Host, req.URL.Path),
				}
			}
			return http.ErrUseLastResponse
		},
	}
	client.Transport = hsts.New(client.Transport) // enable HSTS
	return client
}

func (p *httpsProvider) Exists(ctx context.Context, objectId string) (bool, error) {
	url := fmt.Sprintf("%s/%s", p.baseUrl, objectId)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
	if err != nil {
		return false, &ObjectCheckError{ObjectId: objectId, Message: err.Error()}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, &ObjectCheckError{ObjectId: objectId, Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, &ObjectCheckError{
			ObjectId: objectId,
			Message:  fmt.Sprintf("object store returned status %d", resp.StatusCode),
		}
	}
}
