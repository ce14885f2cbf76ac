package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srvURL string, opts ...Option) Client {
	opts = append(opts, WithBaseURL(srvURL), WithRateLimit(1000))
	return NewClient(opts...)
}

func TestGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"result": {
				"addressMatches": [{
					"coordinates": {"x": -71.0589, "y": 42.3601},
					"matchedAddress": "1 City Hall Sq, Boston, MA 02201",
					"matchType": "Exact"
				}]
			}
		}`)
	}))
	defer srv.Close()

	g := newTestClient(srv.URL)
	result, err := g.Geocode(context.Background(), "1 City Hall Sq, Boston, MA 02201")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 42.3601, result.Latitude, 0.0001)
	assert.InDelta(t, -71.0589, result.Longitude, 0.0001)
	assert.Equal(t, "census", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
}

func TestGeocode_NonExactMatchIsApproximate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"result": {
				"addressMatches": [{
					"coordinates": {"x": -71.06, "y": 42.36},
					"matchedAddress": "Beacon St, Boston, MA",
					"matchType": "Non_Exact"
				}]
			}
		}`)
	}))
	defer srv.Close()

	g := newTestClient(srv.URL)
	result, err := g.Geocode(context.Background(), "Beacon St")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "approximate", result.Quality)
}

func TestGeocode_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer srv.Close()

	g := newTestClient(srv.URL)
	result, err := g.Geocode(context.Background(), "123 Nowhere St")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_EmptyAddress(t *testing.T) {
	g := NewClient(WithRateLimit(1000))
	result, err := g.Geocode(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newTestClient(srv.URL)
	_, err := g.Geocode(context.Background(), "1 Main St")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestGeocode_DefaultCitySuffix(t *testing.T) {
	var gotAddress string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer srv.Close()

	g := newTestClient(srv.URL, WithDefaultCity("Boston, MA"))

	_, err := g.Geocode(context.Background(), "25 Beacon St")
	require.NoError(t, err)
	assert.Equal(t, "25 Beacon St, Boston, MA", gotAddress)

	// A city already present in the address is not repeated.
	_, err = g.Geocode(context.Background(), "25 Beacon St, Boston, MA 02108")
	require.NoError(t, err)
	assert.Equal(t, "25 Beacon St, Boston, MA 02108", gotAddress)
}
