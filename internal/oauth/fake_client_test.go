package oauth

import (
	"bytes"
	"io"
	"net/http"
)

// fakeClient is a hand-written httpclient.Client fake driven by a queue of
// canned responses, matching the teacher's fake-struct testing style rather
// than a mocking framework.
type fakeClient struct {
	responses []fakeResponse
	requests  []*http.Request
}

type fakeResponse struct {
	status int
	body   string
}

func (f *fakeClient) Do(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return &http.Response{StatusCode: 500, Body: io.NopCloser(bytes.NewReader(nil))}, nil
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
		Header:     make(http.Header),
	}, nil
}
