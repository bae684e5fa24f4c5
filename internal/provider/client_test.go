package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"r4r-detector/internal/errs"
)

func createTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		RetryBackoff: 10 * time.Millisecond,
		PageSize:     2,
	})
}

func TestReviewsReceived_FollowsCursor(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "received", r.URL.Query().Get("direction"))

		page := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if page == 1 {
			assert.Empty(t, r.URL.Query().Get("cursor"))
			fmt.Fprint(w, `{
				"data": [
					{"id":"r1","author_userkey":"alice","subject_userkey":"bob","sentiment":"positive","created_at":"2025-03-01T12:00:00Z"},
					{"id":"r2","author_userkey":"carol","subject_userkey":"bob","sentiment":"negative","created_at":"2025-03-02T12:00:00Z"}
				],
				"meta": {"result_count": 2, "next_cursor": "page2"}
			}`)
			return
		}
		assert.Equal(t, "page2", r.URL.Query().Get("cursor"))
		fmt.Fprint(w, `{
			"data": [
				{"id":"r3","author_userkey":"dave","subject_userkey":"bob","created_at":"2025-03-03T12:00:00Z"}
			],
			"meta": {"result_count": 1, "next_cursor": ""}
		}`)
	}))
	defer server.Close()

	client := createTestClient(server.URL)
	reviews, err := client.ReviewsReceived(context.Background(), "bob")

	require.NoError(t, err)
	require.Len(t, reviews, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "r1", reviews[0].ID)
	assert.Equal(t, "r3", reviews[2].ID)
}

func TestReviewsReceived_UnknownUserkey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := createTestClient(server.URL)
	_, err := client.ReviewsReceived(context.Background(), "nobody")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestGetJSON_RetriesOnceOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data": [], "meta": {"result_count": 0, "next_cursor": ""}}`)
	}))
	defer server.Close()

	client := createTestClient(server.URL)
	reviews, err := client.ReviewsReceived(context.Background(), "bob")

	require.NoError(t, err)
	assert.Empty(t, reviews)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetJSON_PersistentServerErrorIsUpstream(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := createTestClient(server.URL)
	_, err := client.ReviewsReceived(context.Background(), "bob")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUpstream))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "exactly one retry")
}

func TestGetJSON_UnexpectedStatusIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := createTestClient(server.URL)
	_, err := client.ReviewsReceived(context.Background(), "bob")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrDataFormat))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestVouches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/bob/vouches", r.URL.Path)
		fmt.Fprint(w, `{
			"given": {"count": 3, "amount": 1.5},
			"received": {"count": 7, "amount": 4.25}
		}`)
	}))
	defer server.Close()

	client := createTestClient(server.URL)
	vouches, err := client.Vouches(context.Background(), "bob")

	require.NoError(t, err)
	assert.Equal(t, 3, vouches.GivenCount)
	assert.InDelta(t, 1.5, vouches.GivenAmount, 1e-9)
	assert.Equal(t, 7, vouches.ReceivedCount)
	assert.InDelta(t, 4.25, vouches.ReceivedAmount, 1e-9)
}

func TestAccountAge_MissingEndpointIsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := createTestClient(server.URL)
	days, known, err := client.AccountAge(context.Background(), "bob")

	require.NoError(t, err)
	assert.False(t, known)
	assert.Zero(t, days)
}

func TestAccountAge_Known(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"days": 412}`)
	}))
	defer server.Close()

	client := createTestClient(server.URL)
	days, known, err := client.AccountAge(context.Background(), "bob")

	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 412, days)
}

func TestGetJSON_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := createTestClient(server.URL)
	_, err := client.ReviewsReceived(ctx, "bob")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTimeout))
}
