package carequeue

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestHTTPRemote(rt roundTripFunc) *HTTPRemote {
	r := NewHTTPRemote("http://store.example/", func(context.Context) (string, error) { return "tok", nil })
	r.HTTP = &http.Client{Transport: rt}
	return r
}

func TestHTTPRemote_Write(t *testing.T) {
	var got *http.Request
	var body string
	r := newTestHTTPRemote(func(req *http.Request) (*http.Response, error) {
		got = req
		b, _ := io.ReadAll(req.Body)
		body = string(b)
		return jsonResponse(http.StatusOK, `{"path":"users/u1/vitals/v1"}`), nil
	})

	err := r.Write(context.Background(), "users/u1/vitals/v 1", map[string]any{"value": 70})
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, got.Method)
	require.Equal(t, "/documents/users/u1/vitals/v%201", got.URL.EscapedPath())
	require.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	require.Equal(t, "application/json", got.Header.Get("Content-Type"))
	require.JSONEq(t, `{"value":70}`, body)
}

func TestHTTPRemote_List(t *testing.T) {
	var got *http.Request
	r := newTestHTTPRemote(func(req *http.Request) (*http.Response, error) {
		got = req
		return jsonResponse(http.StatusOK, `{"documents":[{"path":"users/u1/vitals/a","data":{"v":1},"updated_at":"2025-03-01T10:00:00Z"}],"has_more":false}`), nil
	})

	docs, err := r.List(context.Background(), ListRequest{
		Collection: "users/u1/vitals",
		Filters:    map[string]string{"kind": "hr"},
		OrderBy:    "measuredAt",
		Desc:       true,
		After:      "users/u1/vitals/z",
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "users/u1/vitals/a", docs[0].Path)
	require.JSONEq(t, `{"v":1}`, string(docs[0].Data))

	q := got.URL.Query()
	require.Equal(t, http.MethodGet, got.Method)
	require.Equal(t, "/documents", got.URL.Path)
	require.Equal(t, "users/u1/vitals", q.Get("collection"))
	require.Equal(t, "hr", q.Get("f.kind"))
	require.Equal(t, "measuredAt", q.Get("order_by"))
	require.Equal(t, "true", q.Get("desc"))
	require.Equal(t, "users/u1/vitals/z", q.Get("after"))
	require.Equal(t, "10", q.Get("limit"))
}

func TestHTTPRemote_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		code   string
		class  ErrorClass
	}{
		{http.StatusForbidden, `{"error":"permission-denied","message":"not your document"}`, CodePermissionDenied, ClassPermission},
		{http.StatusUnauthorized, `{"error":"unauthenticated","message":"invalid token"}`, CodeUnauthenticated, ClassUnknown},
		{http.StatusServiceUnavailable, `upstream down`, CodeUnavailable, ClassOffline},
		{http.StatusGatewayTimeout, ``, CodeDeadlineExceeded, ClassOffline},
		{http.StatusBadRequest, `{"error":"invalid-argument","message":"bad path"}`, CodeInvalidArgument, ClassUnknown},
		{http.StatusInternalServerError, `{"error":"write_failed","message":"boom"}`, CodeInternal, ClassUnknown},
	}
	for _, tc := range tests {
		r := newTestHTTPRemote(func(*http.Request) (*http.Response, error) {
			return jsonResponse(tc.status, tc.body), nil
		})
		err := r.Write(context.Background(), "users/u1/vitals/v1", map[string]any{})
		var re *RemoteError
		require.ErrorAs(t, err, &re)
		require.Equal(t, tc.status, re.Status)
		require.Equal(t, tc.code, re.Code)
		require.Equal(t, tc.class, DefaultClassifier{}.Classify(err), "status %d", tc.status)
	}
}

func TestHTTPRemote_TransportErrorIsOffline(t *testing.T) {
	r := newTestHTTPRemote(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
	})
	err := r.Write(context.Background(), "users/u1/vitals/v1", map[string]any{})
	require.Error(t, err)
	require.True(t, IsProbablyOfflineError(err))
}

func TestHTTPRemote_KnownOfflineShortCircuits(t *testing.T) {
	called := false
	r := newTestHTTPRemote(func(*http.Request) (*http.Response, error) {
		called = true
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	r.IsOnline = func() bool { return false }

	_, err := r.List(context.Background(), ListRequest{Collection: "users/u1/vitals"})
	require.ErrorIs(t, err, ErrOffline)
	require.False(t, called)
}
