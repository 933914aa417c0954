package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/geo"
)

var moscow = geo.Point{Lat: 55.7558, Lon: 37.6173}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.GeocoderBaseURL = srv.URL
	cfg.GeocoderUserAgent = "geohealth-test"
	c := NewClient(cfg)
	require.NotNil(t, c)
	return c
}

func TestNewWithoutURL(t *testing.T) {
	assert.Nil(t, NewClient(config.Default()))
	assert.Nil(t, New(config.Default()))
}

func TestReverse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "geohealth-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "55.755800", r.URL.Query().Get("lat"))
		assert.Equal(t, "37.617300", r.URL.Query().Get("lon"))
		_, _ = w.Write([]byte(`{"display_name": "Красная площадь, Москва"}`))
	})

	label, err := c.Reverse(context.Background(), moscow)
	require.NoError(t, err)
	assert.Equal(t, "Красная площадь, Москва", label)
}

func TestReverseNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Unable to geocode"}`))
	})

	_, err := c.Reverse(context.Background(), moscow)
	assert.ErrorIs(t, err, common.ErrAddressNotFound)
}

func TestReverseInvalidPoint(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("запрос не должен уходить")
	})

	_, err := c.Reverse(context.Background(), geo.Point{Lat: 91, Lon: 0})
	assert.ErrorIs(t, err, common.ErrInvalidCoordinate)
}

func TestForward(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Тверская 1", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"lat": "55.7570", "lon": "37.6150", "display_name": "Тверская улица, 1"}]`))
	})

	p, err := c.Forward(context.Background(), "Тверская 1")
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: 55.757, Lon: 37.615}, p)
}

func TestForwardErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{"пустой ответ", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		}, common.ErrAddressNotFound},
		{"сервис недоступен", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}, common.ErrGeocoderUnavailable},
		{"мусор в координатах", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"lat": "north", "lon": "37.6"}]`))
		}, common.ErrGeocoderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Forward(context.Background(), "куда-то")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// countingResolver считает обращения к нижнему резолверу.
type countingResolver struct {
	reverseCalls int
	forwardCalls int
	err          error
}

func (c *countingResolver) Reverse(_ context.Context, p geo.Point) (string, error) {
	c.reverseCalls++
	return "адрес", c.err
}

func (c *countingResolver) Forward(_ context.Context, query string) (geo.Point, error) {
	c.forwardCalls++
	return moscow, c.err
}

func TestCachedReverse(t *testing.T) {
	next := &countingResolver{}
	c, err := NewCached(next, 16, time.Hour)
	require.NoError(t, err)

	for _, p := range []geo.Point{moscow, {Lat: 55.75581, Lon: 37.61731}} {
		label, err := c.Reverse(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, "адрес", label)
	}
	assert.Equal(t, 1, next.reverseCalls, "соседняя точка должна попасть в кэш")

	_, err = c.Reverse(context.Background(), geo.Point{Lat: 55.76, Lon: 37.62})
	require.NoError(t, err)
	assert.Equal(t, 2, next.reverseCalls)
}

func TestCachedForward(t *testing.T) {
	next := &countingResolver{}
	c, err := NewCached(next, 16, time.Hour)
	require.NoError(t, err)

	_, err = c.Forward(context.Background(), "Тверская 1")
	require.NoError(t, err)
	_, err = c.Forward(context.Background(), "  тверская 1 ")
	require.NoError(t, err)
	assert.Equal(t, 1, next.forwardCalls)
}

func TestCachedDoesNotStoreErrors(t *testing.T) {
	next := &countingResolver{err: errors.New("boom")}
	c, err := NewCached(next, 16, time.Hour)
	require.NoError(t, err)

	_, err = c.Reverse(context.Background(), moscow)
	require.Error(t, err)
	_, err = c.Reverse(context.Background(), moscow)
	require.Error(t, err)
	assert.Equal(t, 2, next.reverseCalls)
}
