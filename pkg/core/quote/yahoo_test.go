package quote

import (
	"context"
	"errors"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const uhsChart = `{"chart":{"result":[{
  "meta":{"currency":"USD","symbol":"UHS","regularMarketPrice":208.39},
  "timestamp":[1760650200,1760736600,1760823000],
  "indicators":{"quote":[{
    "close":[205.11,208.38999938964844,null],
    "high":[206.0,209.72,null],
    "low":[203.5,204.9,null],
    "volume":[812300,1045600,null]}]}}],
  "error":null}}`

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func TestLastClose_SkipsOpenBar(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", DefaultBaseURL+"UHS",
		httpmock.NewStringResponder(200, uhsChart))

	q, err := NewClient().LastClose(context.Background(), "uhs")
	require.NoError(t, err)
	assert.Equal(t, "UHS", q.Ticker)
	assert.InDelta(t, 208.39, q.Close, 1e-9)
	assert.InDelta(t, 209.72, q.High, 1e-9)
	assert.Equal(t, int64(1045600), q.Volume)
	assert.Equal(t, int64(1760736600), q.Time.Unix())
}

func TestLastClose_Errors(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", DefaultBaseURL+"NOPE",
		httpmock.NewStringResponder(404, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	httpmock.RegisterResponder("GET", DefaultBaseURL+"EMPTY",
		httpmock.NewStringResponder(200, `{"chart":{"result":[{"meta":{},"indicators":{"quote":[{"close":[null]}]}}],"error":null}}`))

	c := NewClient()
	_, err := c.LastClose(context.Background(), "NOPE")
	assert.ErrorContains(t, err, "status 404")

	_, err = c.LastClose(context.Background(), "EMPTY")
	assert.True(t, errors.Is(err, ErrNoData))
}
