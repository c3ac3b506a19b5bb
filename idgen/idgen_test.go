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

package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ams-project/ams/metadata"
)

func TestGenerateIsDeterministic(t *testing.T) {
	assert := assert.New(t)

	first := Generate(metadata.KindDonor, "ABC123|D1")
	second := Generate(metadata.KindDonor, "ABC123|D1")
	assert.Equal(first, second)
}

func TestGeneratePrefixes(t *testing.T) {
	assert := assert.New(t)

	assert.True(strings.HasPrefix(Generate(metadata.KindDonor, "seed"), "DO-"))
	assert.True(strings.HasPrefix(Generate(metadata.KindSpecimen, "seed"), "SP-"))
	assert.True(strings.HasPrefix(Generate(metadata.KindSample, "seed"), "SA-"))
	assert.True(strings.HasPrefix(Generate(metadata.KindFile, "seed"), "FI-"))
	assert.True(strings.HasPrefix(Generate(metadata.KindAnalysis, "seed"), "AN-"))

	// an unmapped kind still gets an identifier
	assert.True(strings.HasPrefix(Generate(metadata.EntityKind("widget"), "seed"), "ID-"))
}

func TestGenerateDistinguishesKindsAndSeeds(t *testing.T) {
	assert := assert.New(t)

	// the same seed under different kinds yields different identifiers
	donor := Generate(metadata.KindDonor, "ABC123|X1")
	sample := Generate(metadata.KindSample, "ABC123|X1")
	assert.NotEqual(donor[3:], sample[3:])

	// different seeds under the same kind yield different identifiers
	assert.NotEqual(Generate(metadata.KindDonor, "ABC123|D1"),
		Generate(metadata.KindDonor, "ABC123|D2"))
}

func TestRandom(t *testing.T) {
	assert := assert.New(t)

	first := Random("UP")
	second := Random("UP")
	assert.True(strings.HasPrefix(first, "UP-"))
	assert.NotEqual(first, second)
}
