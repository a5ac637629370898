package gmailclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ignite/inbox-assistant/internal/pkg/retry"
)

func apiError(code int, reasons ...string) error {
	e := &googleapi.Error{Code: code}
	for _, r := range reasons {
		e.Errors = append(e.Errors, googleapi.ErrorItem{Reason: r})
	}
	return fmt.Errorf("list messages: %w", e)
}

func TestClassifyTransientErrors(t *testing.T) {
	for _, code := range []int{
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	} {
		err := classify(apiError(code))
		assert.False(t, retry.IsPermanent(err), "status %d must stay retryable", code)
	}
}

func TestClassifyPermanentErrors(t *testing.T) {
	for _, code := range []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusNotFound,
	} {
		err := classify(apiError(code))
		assert.True(t, retry.IsPermanent(err), "status %d must not be retried", code)
	}
}

func TestClassifyForbiddenRateLimit(t *testing.T) {
	// 403 is permanent unless the reason is a quota signal.
	assert.True(t, retry.IsPermanent(classify(apiError(http.StatusForbidden, "insufficientPermissions"))))
	assert.False(t, retry.IsPermanent(classify(apiError(http.StatusForbidden, "rateLimitExceeded"))))
	assert.False(t, retry.IsPermanent(classify(apiError(http.StatusForbidden, "userRateLimitExceeded"))))
}

func TestClassifyNetworkError(t *testing.T) {
	err := classify(errors.New("dial tcp: connection refused"))
	assert.False(t, retry.IsPermanent(err))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), "/nonexistent/credentials.json", "/nonexistent/token.json")
	assert.Error(t, err)
}

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return nil
}

func fakeGmailServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/messages") {
			fmt.Fprint(w, `{"messages":[{"id":"m1"},{"id":"m2"},{"id":"m3"}]}`)
			return
		}
		fmt.Fprintf(w, `{"id":%q}`, path.Base(r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchBatchPacesPerMessageGets(t *testing.T) {
	srv := fakeGmailServer(t)
	gsrv, err := gmail.NewService(context.Background(),
		option.WithoutAuthentication(), option.WithEndpoint(srv.URL))
	require.NoError(t, err)

	pacer := &countingPacer{}
	c := NewWithService(gsrv)
	c.SetPacer(pacer)

	msgs, next, err := c.FetchBatch(context.Background(), 10, time.Now().Add(-time.Hour), "")
	require.NoError(t, err)
	assert.Empty(t, next)
	assert.Len(t, msgs, 3)
	assert.Equal(t, 3, pacer.waits, "each per-message get waits out the delay")
}

func TestFetchBatchWithoutPacer(t *testing.T) {
	srv := fakeGmailServer(t)
	gsrv, err := gmail.NewService(context.Background(),
		option.WithoutAuthentication(), option.WithEndpoint(srv.URL))
	require.NoError(t, err)

	msgs, _, err := NewWithService(gsrv).FetchBatch(context.Background(), 10, time.Now().Add(-time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}
