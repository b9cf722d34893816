package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiqualifier/aiq-api/config"
	domainauth "github.com/aiqualifier/aiq-api/internal/domain/auth"
	"github.com/aiqualifier/aiq-api/internal/service"
	"github.com/aiqualifier/aiq-api/internal/testutil"
)

func testAuthConfig(mode config.AuthMode) config.AuthConfig {
	return config.AuthConfig{
		Mode:       mode,
		AdminGroup: "app-admins",
		UserGroup:  "app-users",
		DevAuth: config.DevAuthConfig{
			UserID: "dev-user",
			Email:  "dev@example.com",
			Groups: []string{"app-admins"},
		},
	}
}

func TestBuildAuthService_NilRedisDisablesAuth(t *testing.T) {
	svc := BuildAuthService(AuthConfig{
		Auth:   testAuthConfig(config.AuthModeMock),
		Logger: testLogger(),
	})
	assert.Nil(t, svc)
}

func TestBuildAuthService_UnknownModeDisablesAuth(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	svc := BuildAuthService(AuthConfig{
		Auth:        testAuthConfig(config.AuthMode("ldap")),
		RedisClient: client,
		Logger:      testLogger(),
	})
	assert.Nil(t, svc)
}

func TestBuildAuthService_OAuthMissingConfigDisablesAuth(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	svc := BuildAuthService(AuthConfig{
		Auth:        testAuthConfig(config.AuthModeOAuth),
		RedisClient: client,
		Logger:      testLogger(),
	})
	assert.Nil(t, svc)
}

func TestBuildAuthService_MockModeLoginRoundTrip(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	svc := BuildAuthService(AuthConfig{
		Auth:        testAuthConfig(config.AuthModeMock),
		RedisClient: client,
		Logger:      testLogger(),
	})
	require.NotNil(t, svc)

	ctx := context.Background()
	begin, err := svc.BeginLogin(ctx, "/")
	require.NoError(t, err)
	require.NotEmpty(t, begin.AuthURL)

	// Dev provider accepts any code along with its own state and nonce.
	complete, err := svc.CompleteLogin(ctx, service.CompleteLoginInput{
		Code:  "dev",
		State: begin.State,
		Nonce: begin.Nonce,
	})
	require.NoError(t, err)
	assert.Equal(t, "dev-user", complete.Session.UserID)
	assert.Equal(t, domainauth.RoleAdmin, complete.Session.Role)

	fetched, err := svc.GetSession(ctx, complete.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, complete.Session.UserID, fetched.UserID)

	require.NoError(t, svc.Logout(ctx, complete.Session.ID))
	_, err = svc.GetSession(ctx, complete.Session.ID)
	assert.Error(t, err)
}
