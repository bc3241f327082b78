package util_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spockmay/bainbridge-now/internal/util"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		require.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("calendar"))
	}))
	defer srv.Close()

	client := util.NewHTTPClient(time.Second)

	body, err := util.Get(context.Background(), client, srv.URL+"/feed")
	require.NoError(t, err)
	require.Equal(t, "calendar", string(body))

	_, err = util.Get(context.Background(), client, srv.URL+"/missing")
	require.ErrorIs(t, err, util.ErrUnexpectedStatus)
}

func TestNewHTTPClient(t *testing.T) {
	require.Equal(t, util.DefaultTimeout, util.NewHTTPClient(0).Timeout)
	require.Equal(t, 5*time.Second, util.NewHTTPClient(5*time.Second).Timeout)
}
