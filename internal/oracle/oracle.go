// Package oracle — внешний сервис оценки текстов: качество описания POI
// и полезность отзыва. Сам сервис может тормозить и падать, поэтому
// вызывающий код работает через Guard, который всегда отвечает вовремя.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
)

// DescriptionScore — оценка описания POI.
type DescriptionScore struct {
	StaticScore float64  `json:"static_score"` // 0..100
	Confidence  float64  `json:"confidence"`   // 0..1
	RedFlags    []string `json:"red_flags"`
}

// ReviewQuality — оценка отзыва.
type ReviewQuality struct {
	Completeness float64 `json:"completeness"` // 0..1
	Usefulness   float64 `json:"usefulness"`   // 0..1
}

// ScoringOracle — сервис оценки.
type ScoringOracle interface {
	ScoreDescription(ctx context.Context, description, category string) (DescriptionScore, error)
	ScoreReviewQuality(ctx context.Context, content, category string, hasMedia bool) (ReviewQuality, error)
}

// Client — HTTP-клиент оракула (JSON, авторизация Bearer-токеном).
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient создаёт клиента. Без ORACLE_BASE_URL возвращает nil.
func NewClient(cfg *config.Config) *Client {
	if cfg.OracleBaseURL == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.OracleBaseURL, "/"),
		token:   cfg.OracleToken,
		http:    &http.Client{},
	}
}

// New возвращает клиента как ScoringOracle или nil, если оракул не настроен.
func New(cfg *config.Config) ScoringOracle {
	if c := NewClient(cfg); c != nil {
		return c
	}
	return nil
}

type descriptionRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
}

type reviewRequest struct {
	Content  string `json:"content"`
	Category string `json:"category"`
	HasMedia bool   `json:"has_media"`
}

// ScoreDescription оценивает описание POI.
func (c *Client) ScoreDescription(ctx context.Context, description, category string) (DescriptionScore, error) {
	var out DescriptionScore
	if err := c.post(ctx, "/score/description", descriptionRequest{description, category}, &out); err != nil {
		return DescriptionScore{}, err
	}
	if out.StaticScore < 0 || out.StaticScore > 100 {
		return DescriptionScore{}, fmt.Errorf("%w: static_score=%v вне 0..100", common.ErrOracleError, out.StaticScore)
	}
	return out, nil
}

// ScoreReviewQuality оценивает полноту и полезность отзыва.
func (c *Client) ScoreReviewQuality(ctx context.Context, content, category string, hasMedia bool) (ReviewQuality, error) {
	var out ReviewQuality
	if err := c.post(ctx, "/score/review", reviewRequest{content, category, hasMedia}, &out); err != nil {
		return ReviewQuality{}, err
	}
	if out.Completeness < 0 || out.Completeness > 1 || out.Usefulness < 0 || out.Usefulness > 1 {
		return ReviewQuality{}, fmt.Errorf("%w: оценки вне 0..1", common.ErrOracleError)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ошибка кодирования запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return common.ErrOracleTimeout
		}
		return fmt.Errorf("%w: %v", common.ErrOracleError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status=%d, body=%s", common.ErrOracleError, resp.StatusCode, string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: ошибка разбора ответа: %v", common.ErrOracleError, err)
	}
	return nil
}
