package letterboxd

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

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/infra/metrics"
)

const (
	DefaultBaseURL = "https://api.letterboxd.com/api/v0"

	activityPageSize  = 100
	watchlistPageSize = 100
	filmCacheSize     = 512
	filmCacheTTL      = 6 * time.Hour
	memberCachePrefix = "boxd:member_id:"
)

// ErrMemberNotFound возвращается, если участник с таким именем не найден.
var ErrMemberNotFound = fmt.Errorf("letterboxd: участник не найден: %w", domain.ErrNotFound)

// APIError описывает ответ API с неуспешным статусом.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("letterboxd: status %d: %s", e.Status, e.Body)
}

// Config задаёт доступ к API.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	RPS          float64
	Timeout      time.Duration
}

// Client выполняет запросы к API Letterboxd.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	cache    domain.Cache
	cacheTTL time.Duration
	films    *expirable.LRU[string, domain.Film]
	log      zerolog.Logger
}

var (
	_ domain.FeedClient      = (*Client)(nil)
	_ domain.MemberDirectory = (*Client)(nil)
)

// Option настраивает клиента.
type Option func(*Client)

// WithCache включает кэш идентификаторов участников.
func WithCache(cache domain.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithRateLimit ограничивает частоту запросов к API.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger задаёт логгер клиента.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// NewClient получает токен по password grant и создаёт клиента.
func NewClient(ctx context.Context, cfg Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	transport := newRetryableClient(logger, cfg.Timeout)

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  base + "/auth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	// Токен обновляется в фоне через TokenSource, поэтому ctx должен жить всё время работы процесса.
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, transport)
	start := time.Now()
	token, err := oauthCfg.PasswordCredentialsToken(tokenCtx, cfg.Username, cfg.Password)
	metrics.ObserveNetworkRequest("letterboxd", "auth_token", "auth", start, err)
	if err != nil {
		return nil, fmt.Errorf("letterboxd: получение токена: %w", err)
	}
	httpClient := oauth2.NewClient(tokenCtx, oauthCfg.TokenSource(tokenCtx, token))
	httpClient.Timeout = cfg.Timeout

	opts = append([]Option{WithRateLimit(cfg.RPS), WithLogger(logger)}, opts...)
	return New(base, httpClient, opts...), nil
}

// New создаёт клиента поверх готового http.Client.
func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		films:   expirable.NewLRU[string, domain.Film](filmCacheSize, nil, filmCacheTTL),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activity возвращает собственную активность участника, без контента для взрослых.
func (c *Client) Activity(ctx context.Context, memberID string) ([]domain.Activity, error) {
	query := url.Values{}
	query.Set("perPage", strconv.Itoa(activityPageSize))
	query.Set("adult", "false")
	query.Set("where", "OwnActivity")
	body, err := c.get(ctx, "activity", "/member/"+url.PathEscape(memberID)+"/activity", query)
	if err != nil {
		return nil, err
	}
	return DecodeFeed(body)
}

// MemberIDByUsername ищет участника по точному совпадению имени.
func (c *Client) MemberIDByUsername(ctx context.Context, username string) (string, error) {
	cacheKey := memberCachePrefix + username
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey); err == nil && len(cached) > 0 {
			return string(cached), nil
		}
	}

	query := url.Values{}
	query.Set("input", username)
	query.Set("include", "MemberSearchItem")
	query.Set("adult", "false")
	body, err := c.get(ctx, "search", "/search", query)
	if err != nil {
		return "", err
	}
	var page struct {
		Items []struct {
			Member memberDTO `json:"member"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return "", fmt.Errorf("%w: поиск: %v", ErrMalformed, err)
	}
	for _, item := range page.Items {
		if item.Member.Username != username {
			continue
		}
		if c.cache != nil {
			if err := c.cache.Set(ctx, cacheKey, []byte(item.Member.ID), c.cacheTTL); err != nil {
				c.log.Warn().Err(err).Str("username", username).Msg("letterboxd: не удалось закэшировать участника")
			}
		}
		return item.Member.ID, nil
	}
	return "", ErrMemberNotFound
}

// Member возвращает профиль участника вместе с биографией.
func (c *Client) Member(ctx context.Context, memberID string) (domain.MemberProfile, error) {
	body, err := c.get(ctx, "member", "/member/"+url.PathEscape(memberID), nil)
	if err != nil {
		return domain.MemberProfile{}, err
	}
	var dto memberProfileDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return domain.MemberProfile{}, fmt.Errorf("%w: профиль: %v", ErrMalformed, err)
	}
	return dto.toDomain(), nil
}

// Watchlist возвращает идентификаторы фильмов из вотчлиста участника.
func (c *Client) Watchlist(ctx context.Context, memberID string) ([]string, error) {
	query := url.Values{}
	query.Set("perPage", strconv.Itoa(watchlistPageSize))
	body, err := c.get(ctx, "watchlist", "/member/"+url.PathEscape(memberID)+"/watchlist", query)
	if err != nil {
		return nil, err
	}
	var page struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: вотчлист: %v", ErrMalformed, err)
	}
	ids := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// Film возвращает фильм по идентификатору, ответы кэшируются в памяти.
func (c *Client) Film(ctx context.Context, filmID string) (domain.Film, error) {
	if film, ok := c.films.Get(filmID); ok {
		return film, nil
	}
	body, err := c.get(ctx, "film", "/film/"+url.PathEscape(filmID), nil)
	if err != nil {
		return domain.Film{}, err
	}
	var dto filmDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return domain.Film{}, fmt.Errorf("%w: фильм: %v", ErrMalformed, err)
	}
	film := dto.toDomain()
	c.films.Add(filmID, film)
	return film, nil
}

func (c *Client) get(ctx context.Context, operation, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("letterboxd: ожидание лимита: %w", err)
		}
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("letterboxd: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("letterboxd", operation, "api", start, err)
		return nil, fmt.Errorf("letterboxd: %s: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("letterboxd", operation, "api", start, err)
		return nil, fmt.Errorf("letterboxd: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(truncateBody(body)))}
		metrics.ObserveNetworkRequest("letterboxd", operation, "api", start, apiErr)
		return nil, apiErr
	}
	metrics.ObserveNetworkRequest("letterboxd", operation, "api", start, nil)
	return body, nil
}

func truncateBody(body []byte) []byte {
	if len(body) > 1024 {
		return body[:1024]
	}
	return body
}
