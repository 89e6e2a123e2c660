package debrid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewService(newTestClient(t, srv.URL), nil)
}

func TestUser(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":42,"username":"alice","email":"a@example.com","premium":86400,"type":"premium"}`))
	}))

	u, err := svc.User(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(42), u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, int64(86400), u.Premium)
}

func TestUser_NotLoggedInSurfacesClassification(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad_token","error_code":8}`))
	}))

	_, err := svc.User(context.Background())
	require.Error(t, err)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.True(t, svcErr.RequiresReauth)
	assert.Equal(t, SeverityCritical, svcErr.Severity)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListFiles_Primary(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		assert.Equal(t, "report", r.URL.Query().Get("search"))

		_, _ = w.Write([]byte(`[
			{"id":"f1","filename":"report.pdf","filesize":1024,"hash":"AABB","mimetype":"application/pdf",
			 "generated":"2026-01-01T00:00:00Z","modified":"2026-02-01T00:00:00Z","download":"https://dl.example/f1"}
		]`))
	}))

	files, err := svc.ListFiles(context.Background(), 2, 100, "report")
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "f1", files[0].ID)
	assert.Equal(t, "report.pdf", files[0].Name)
	assert.Equal(t, int64(1024), files[0].Size)
	assert.Equal(t, "AABB", files[0].Hash)
	assert.Equal(t, "https://dl.example/f1", files[0].DownloadURL)
}

func TestListFiles_FallsBackToDownloads(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/files", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("/downloads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page"))

		_, _ = w.Write([]byte(`[
			{"id":"d1","filename":"movie.mkv","filesize":2048,"mimetype":"video/x-matroska",
			 "download":"https://dl.example/d1","generated":"2026-03-01T00:00:00Z"}
		]`))
	})

	svc := newTestService(t, mux)

	files, err := svc.ListFiles(context.Background(), 1, 50, "")
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "d1", files[0].ID)
	assert.Equal(t, "movie.mkv", files[0].Name)
	assert.Empty(t, files[0].Hash, "fallback listing carries no content hashes")
	assert.Equal(t, files[0].CreatedAt, files[0].ModifiedAt)
}

func TestListFiles_ErrorWrapped(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"permission_denied","error_code":9}`))
	}))

	_, err := svc.ListFiles(context.Background(), 1, 50, "")
	require.Error(t, err)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, SeverityHigh, svcErr.Severity)
	assert.False(t, svcErr.ShouldRetry)
}

func TestServerTime(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/time", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"), "time probe is unauthenticated")

		_, _ = w.Write([]byte("2026-08-31 12:34:56"))
	}))

	ts, err := svc.ServerTime(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 8, 31, 12, 34, 56, 0, time.UTC), ts)
}

func TestServerTime_Unparseable(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a timestamp"))
	}))

	_, err := svc.ServerTime(context.Background())
	assert.Error(t, err)
}
