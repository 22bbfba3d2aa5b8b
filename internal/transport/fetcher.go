// Package transport connects the cache to Discord through discordgo: REST
// history pages in, gateway dispatch events in.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"discord-entity-cache/internal/metrics"
	"discord-entity-cache/internal/payload"
	"discord-entity-cache/internal/snowflake"
	"discord-entity-cache/internal/state"

	"github.com/bwmarrin/discordgo"
)

// Requester is the REST surface of *discordgo.Session the fetcher needs
type Requester interface {
	RequestWithBucketID(method, urlStr string, data interface{}, bucketID string, options ...discordgo.RequestOption) ([]byte, error)
}

// HistoryFetcher pages channel history over REST
type HistoryFetcher struct {
	rest Requester
}

var _ state.Fetcher = (*HistoryFetcher)(nil)

func NewHistoryFetcher(rest Requester) *HistoryFetcher {
	return &HistoryFetcher{rest: rest}
}

// FetchHistory requests up to limit messages older than before, newest first
func (f *HistoryFetcher) FetchHistory(ctx context.Context, channelID uint64, limit int, before uint64) ([]payload.Payload, error) {
	endpoint := discordgo.EndpointChannelMessages(snowflake.Format(channelID))

	v := url.Values{}
	v.Set("limit", strconv.Itoa(limit))
	if before != 0 {
		v.Set("before", snowflake.Format(before))
	}

	body, err := f.rest.RequestWithBucketID(http.MethodGet, endpoint+"?"+v.Encode(), nil, endpoint, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}

	page, err := payload.DecodeList(body)
	if err != nil {
		return nil, fmt.Errorf("channel %d history: %w", channelID, err)
	}
	return page, nil
}

// ForbiddenError is a REST failure caused by missing access. It matches both
// state.ErrHistoryForbidden and the underlying *discordgo.RESTError.
type ForbiddenError struct {
	Code int
	Err  error
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("history forbidden (code %d): %v", e.Code, e.Err)
}

func (e *ForbiddenError) Unwrap() []error {
	return []error{state.ErrHistoryForbidden, e.Err}
}

func mapError(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}

	code := 0
	if rest.Message != nil {
		code = rest.Message.Code
	}
	switch {
	case code == discordgo.ErrCodeMissingAccess, code == discordgo.ErrCodeMissingPermissions:
		return &ForbiddenError{Code: code, Err: rest}
	case rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden:
		return &ForbiddenError{Code: code, Err: rest}
	}
	return err
}

// InstrumentedTransport wraps http.RoundTripper to record REST latency
type InstrumentedTransport struct {
	Base    http.RoundTripper
	Metrics *metrics.Metrics
}

func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	t.Metrics.ObserveREST(req.Method, time.Since(start))
	return resp, err
}
