// Package geocode — преобразование координат в адрес и обратно через
// сервис с API, совместимым с Nominatim. Ответы кэшируются.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/geo"
)

// AddressResolver — прямое и обратное геокодирование.
type AddressResolver interface {
	Reverse(ctx context.Context, p geo.Point) (string, error)
	Forward(ctx context.Context, query string) (geo.Point, error)
}

// Client — HTTP-клиент геокодера.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient создаёт клиента. Без GEOCODER_BASE_URL возвращает nil:
// подписи адресов просто не будет.
func NewClient(cfg *config.Config) *Client {
	if cfg.GeocoderBaseURL == "" {
		return nil
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.GeocoderBaseURL, "/"),
		userAgent: cfg.GeocoderUserAgent,
		http:      &http.Client{Timeout: cfg.GeocoderTimeout},
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

type searchItem struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Reverse возвращает адрес точки.
func (c *Client) Reverse(ctx context.Context, p geo.Point) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', 6, 64))
	q.Set("accept-language", "ru")

	var resp reverseResponse
	if err := c.get(ctx, "/reverse", q, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" || resp.DisplayName == "" {
		return "", fmt.Errorf("%v: %w", p, common.ErrAddressNotFound)
	}
	return resp.DisplayName, nil
}

// Forward возвращает координаты первого найденного адреса.
func (c *Client) Forward(ctx context.Context, query string) (geo.Point, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("q", query)
	q.Set("limit", "1")

	var items []searchItem
	if err := c.get(ctx, "/search", q, &items); err != nil {
		return geo.Point{}, err
	}
	if len(items) == 0 {
		return geo.Point{}, fmt.Errorf("%q: %w", query, common.ErrAddressNotFound)
	}

	lat, errLat := strconv.ParseFloat(items[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(items[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return geo.Point{}, fmt.Errorf("некорректные координаты в ответе: %w", common.ErrGeocoderUnavailable)
	}
	p := geo.Point{Lat: lat, Lon: lon}
	return p, p.Validate()
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrGeocoderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status=%d, body=%s", common.ErrGeocoderUnavailable, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: ошибка разбора ответа: %v", common.ErrGeocoderUnavailable, err)
	}
	return nil
}

// Cached — AddressResolver с кэшем. Ключ обратного геокодирования —
// координаты, округлённые до ~10 м, чтобы соседние запросы попадали в кэш.
type Cached struct {
	next    AddressResolver
	reverse *common.TTLCache[string]
	forward *common.TTLCache[geo.Point]
}

// NewCached оборачивает resolver кэшем на size записей.
func NewCached(next AddressResolver, size int, ttl time.Duration) (*Cached, error) {
	rc, err := common.NewTTLCache[string](size, ttl)
	if err != nil {
		return nil, err
	}
	fc, err := common.NewTTLCache[geo.Point](size, ttl)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, reverse: rc, forward: fc}, nil
}

func reverseKey(p geo.Point) string {
	return fmt.Sprintf("%.4f:%.4f", p.Lat, p.Lon)
}

func (c *Cached) Reverse(ctx context.Context, p geo.Point) (string, error) {
	key := reverseKey(p)
	if label, ok := c.reverse.Get(key); ok {
		return label, nil
	}

	label, err := c.next.Reverse(ctx, p)
	if err != nil {
		return "", err
	}
	c.reverse.Set(key, label)
	return label, nil
}

func (c *Cached) Forward(ctx context.Context, query string) (geo.Point, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if p, ok := c.forward.Get(key); ok {
		return p, nil
	}

	p, err := c.next.Forward(ctx, query)
	if err != nil {
		return geo.Point{}, err
	}
	c.forward.Set(key, p)
	return p, nil
}

// New собирает резолвер из конфигурации: клиент с кэшем или nil, если геокодер не настроен.
func New(cfg *config.Config) AddressResolver {
	client := NewClient(cfg)
	if client == nil {
		log.Info("Геокодер не настроен, подписи адресов отключены")
		return nil
	}
	cached, err := NewCached(client, 10000, 7*24*time.Hour)
	if err != nil {
		log.WithError(err).Warn("Не удалось создать кэш геокодера, работаем без кэша")
		return client
	}
	return cached
}
