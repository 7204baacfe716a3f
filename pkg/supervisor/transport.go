package supervisor

import (
	"io"
	"net/http"
	"time"
)

// statusTransport turns non-2xx answers into RoundTrip errors. The XML-RPC
// client only reports a bad status as an opaque string; failing the round trip
// keeps the status code available to errors.Is and errors.As.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
}

func defaultTransport(timeout time.Duration) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = timeout
	return t
}
