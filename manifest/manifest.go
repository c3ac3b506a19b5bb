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

// This package renders a published analysis as a Frictionless data package
// (https://specs.frictionlessdata.io/data-package/), one resource per file,
// for downstream download tooling.
package manifest

import (
	"strings"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"

	"github.com/ams-project/ams/metadata"
)

// Builds a manifest for the given analysis and its files. The descriptor is
// validated against the data-package profile before it's returned.
func ForAnalysis(analysis metadata.Analysis, files []metadata.File) (*datapackage.Package, error) {
	resources := make([]any, 0, len(files))
	for _, file := range files {
		resource := map[string]any{
			"name":   slugify(file.Name),
			"id":     file.FileId,
			"path":   file.Name,
			"bytes":  file.Size,
			"format": file.Type,
			"hash":   file.Md5,
		}
		if file.ObjectId != "" {
			resource["sources"] = []any{
				map[string]any{
					"title": "object store",
					"path":  file.ObjectId,
				},
			}
		}
		resources = append(resources, resource)
	}

	descriptor := map[string]any{
		"name":        slugify(analysis.AnalysisId),
		"title":       analysis.AnalysisId,
		"description": "Files registered under analysis " + analysis.AnalysisId,
		"resources":   resources,
		"created":     time.Now().Format(time.RFC3339),
		"profile":     "data-package",
		"keywords":    []any{"ams", "manifest", analysis.StudyId, analysis.TypeName},
	}

	return datapackage.New(descriptor, ".", validator.InMemoryLoader())
}

// Frictionless resource names allow only lowercase alphanumerics and
// '.', '_', '-'; everything else becomes a dash.
func slugify(name string) string {
	var builder strings.Builder
	for _, c := range strings.ToLower(name) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
			builder.WriteRune(c)
		default:
			builder.WriteRune('-')
		}
	}
	return builder.String()
}
