package fetch

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile("")
	require.NoError(t, err)
	assert.Equal(t, ProfileGo, p)

	p, err = ParseProfile(" Chrome ")
	require.NoError(t, err)
	assert.Equal(t, ProfileChrome, p)

	_, err = ParseProfile("netscape")
	assert.Error(t, err)
}

func TestTransportProfiles(t *testing.T) {
	for _, p := range []Profile{ProfileGo, ProfileChrome, ProfileFirefox, ProfileSafari} {
		rt, err := Transport(p)
		require.NoError(t, err, p)
		tr, ok := rt.(*http.Transport)
		require.True(t, ok, p)
		if p == ProfileGo {
			assert.Nil(t, tr.DialTLSContext)
		} else {
			assert.NotNil(t, tr.DialTLSContext, p)
		}
	}

	_, err := Transport(Profile("netscape"))
	assert.Error(t, err)
}

func TestTransportGoProfileServesTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt, err := Transport(ProfileGo)
	require.NoError(t, err)
	tr := rt.(*http.Transport)
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	resp, err := (&http.Client{Transport: tr}).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserAgentPoolRoundRobin(t *testing.T) {
	p := NewUserAgentPool([]string{"A", "B"})
	assert.Equal(t, "A", p.Next())
	assert.Equal(t, "B", p.Next())
	assert.Equal(t, "A", p.Next())

	assert.Equal(t, DefaultUserAgents[0], NewUserAgentPool(nil).Next())
}
