package clover

import (
	"context"
	"net/http"
	"testing"
	"time"

	"findixi/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthClient_RefreshWithJSON(t *testing.T) {
	fake := testhelpers.NewFakeClover()
	defer fake.Server.Close()

	client := NewOAuthClient(fake.URL(), "client-1", 5*time.Second)
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return fixed }

	pair, err := client.Refresh(context.Background(), "refresh-0")
	require.NoError(t, err)

	assert.Equal(t, fake.AccessToken, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, fixed.Add(time.Hour), pair.ExpiresAt)

	reqs := fake.Requests(testhelpers.RouteRefresh)
	require.Len(t, reqs, 1)
	assert.Equal(t, "application/json", reqs[0].ContentType)
	assert.Equal(t, "refresh-0", reqs[0].Body["refresh_token"])
	assert.Equal(t, "client-1", reqs[0].Body["client_id"])
}

func TestOAuthClient_FallsBackToFormOnUnsupportedMediaType(t *testing.T) {
	fake := testhelpers.NewFakeClover()
	defer fake.Server.Close()
	fake.Script(testhelpers.RouteRefresh, http.StatusUnsupportedMediaType, `{"message":"unsupported"}`)

	client := NewOAuthClient(fake.URL(), "client-1", 5*time.Second)
	_, err := client.Refresh(context.Background(), "refresh-0")
	require.NoError(t, err)

	reqs := fake.Requests(testhelpers.RouteRefresh)
	require.Len(t, reqs, 2)
	assert.Equal(t, "application/json", reqs[0].ContentType)
	assert.Equal(t, "application/x-www-form-urlencoded", reqs[1].ContentType)
	assert.Contains(t, reqs[1].RawBody, "refresh_token=refresh-0")

	// the form strategy is remembered
	_, err = client.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	reqs = fake.Requests(testhelpers.RouteRefresh)
	require.Len(t, reqs, 3)
	assert.Equal(t, "application/x-www-form-urlencoded", reqs[2].ContentType)
}

func TestOAuthClient_FallsBackOnNullCodeMessage(t *testing.T) {
	fake := testhelpers.NewFakeClover()
	defer fake.Server.Close()
	fake.Script(testhelpers.RouteRefresh, http.StatusBadRequest, `{"message":"Code must not be null"}`)

	client := NewOAuthClient(fake.URL(), "client-1", 5*time.Second)
	_, err := client.Refresh(context.Background(), "refresh-0")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls(testhelpers.RouteRefresh))
}

func TestOAuthClient_NoFallbackOnOtherErrors(t *testing.T) {
	fake := testhelpers.NewFakeClover()
	defer fake.Server.Close()
	fake.Script(testhelpers.RouteRefresh, http.StatusUnauthorized, `{"message":"invalid refresh token"}`)

	client := NewOAuthClient(fake.URL(), "client-1", 5*time.Second)
	_, err := client.Refresh(context.Background(), "revoked")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, 1, fake.Calls(testhelpers.RouteRefresh))
}

func TestOAuthClient_FallbackFailureIsReported(t *testing.T) {
	fake := testhelpers.NewFakeClover()
	defer fake.Server.Close()
	fake.Script(testhelpers.RouteRefresh, http.StatusUnsupportedMediaType, `{}`)
	fake.Script(testhelpers.RouteRefresh, http.StatusBadRequest, `{"message":"bad client"}`)

	client := NewOAuthClient(fake.URL(), "client-1", 5*time.Second)
	_, err := client.Refresh(context.Background(), "refresh-0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad client")
	assert.Equal(t, 2, fake.Calls(testhelpers.RouteRefresh))
}

func TestOAuthClient_ParseTokens(t *testing.T) {
	client := NewOAuthClient("http://unused", "c", time.Second)
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return fixed }

	pair, err := client.parseTokens(`{"access_token":"a","access_token_expiration":1900000000}`)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1900000000, 0).UTC(), pair.ExpiresAt)
	assert.Empty(t, pair.RefreshToken)

	pair, err = client.parseTokens(`{"access_token":"a","expires":"60"}`)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(time.Minute), pair.ExpiresAt)

	pair, err = client.parseTokens(`{"access_token":"a"}`)
	require.NoError(t, err)
	assert.True(t, pair.ExpiresAt.IsZero())

	_, err = client.parseTokens(`{"refresh_token":"r"}`)
	assert.Error(t, err)
}
