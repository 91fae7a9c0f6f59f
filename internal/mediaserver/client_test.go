package mediaserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListActiveSessionsParsesSnapshot(t *testing.T) {
	var gotToken, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Api-Token")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sessions":[
			{"session_key":"s1","user_id":"u1","user_name":"alice","media_id":"m1",
			 "media_title":"The Big Picture","media_type":"movie","state":"playing",
			 "view_offset_ms":60000,"duration_ms":7200000,"transcode_decision":"direct play"},
			{"session_key":"s2","user_id":"u2","user_name":"bob","state":"paused"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret-token", time.Second, nil)
	sessions, err := c.ListActiveSessions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "secret-token", gotToken)
	assert.Equal(t, "/api/v1/sessions", gotPath)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].SessionKey)
	assert.Equal(t, "playing", sessions[0].State)
	assert.Equal(t, int64(60_000), sessions[0].ViewOffsetMs)
	assert.Equal(t, "direct play", sessions[0].TranscodeDecision)
	assert.Equal(t, "paused", sessions[1].State)
}

func TestListActiveSessionsEmptySnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"sessions":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, nil)
	sessions, err := c.ListActiveSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions, "empty list with no error means genuinely zero sessions")
}

func TestListActiveSessionsServerErrorIsSourceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, nil)
	sessions, err := c.ListActiveSessions(context.Background())
	require.Error(t, err)
	assert.Nil(t, sessions)

	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, http.StatusBadGateway, srcErr.StatusCode)
}

func TestListActiveSessionsNetworkErrorIsSourceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(srv.URL, "tok", time.Second, nil)
	_, err := c.ListActiveSessions(context.Background())
	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.NotNil(t, srcErr.Err)
}

func TestListActiveSessionsMalformedBodyIsSourceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"sessions": not-json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, nil)
	_, err := c.ListActiveSessions(context.Background())
	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, nil)
	assert.NoError(t, c.Ping(context.Background()))
}
