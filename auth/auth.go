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

package auth

// A record describing a submitter authorized to use the service. Submitters
// present bearer tokens minted (out of band) from these records.
type User struct {
	// name (human-readable and display-friendly)
	Name string `json:"name"`
	// email address
	Email string `json:"email"`
	// organization with which this submitter is affiliated
	Organization string `json:"organization,omitempty"`
	// studies this submitter may write to (empty means all)
	Studies []string `json:"studies,omitempty"`
	// true if this submitter may register schemas and suppress analyses
	IsAdmin bool `json:"isAdmin,omitempty"`
}

// May the user submit to the given study?
func (u User) MaySubmitTo(studyId string) bool {
	if len(u.Studies) == 0 {
		return true
	}
	for _, id := range u.Studies {
		if id == studyId {
			return true
		}
	}
	return false
}
