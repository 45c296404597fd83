package letterboxd

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// leveledZerolog переводит ERROR клиента в WARN: промежуточные ошибки ретраятся.
type leveledZerolog struct {
	inner zerolog.Logger
}

func (l leveledZerolog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn().Fields(keysAndValues).Msg(msg)
}

func (l leveledZerolog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn().Fields(keysAndValues).Msg(msg)
}

func (l leveledZerolog) Info(msg string, keysAndValues ...any) {
	l.inner.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledZerolog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug().Fields(keysAndValues).Msg(msg)
}

// newRetryableClient собирает http.Client с ретраями на сетевые ошибки и 5xx.
// 429 не ретраится: лимит запросов соблюдается на стороне клиента.
func newRetryableClient(logger zerolog.Logger, timeout time.Duration) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledZerolog{inner: logger})
	retryClient.CheckRetry = retryPolicy

	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}

func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
