package httptransport

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	t.Run("注册成功返回令牌", func(t *testing.T) {
		f := newRouterFixture(t)

		resp := f.registerUser(t, "alice@example.com")
		assert.Equal(t, "alice@example.com", resp.User.Email)
		assert.NotEmpty(t, resp.User.ID)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, "Bearer", resp.TokenType)
	})

	t.Run("重复邮箱返回409", func(t *testing.T) {
		f := newRouterFixture(t)
		f.registerUser(t, "dup@example.com")

		w := f.doJSON(t, http.MethodPost, "/v1/auth/register", gin.H{
			"email":    "dup@example.com",
			"password": "long-enough-password",
		}, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("密码过短返回400", func(t *testing.T) {
		f := newRouterFixture(t)

		w := f.doJSON(t, http.MethodPost, "/v1/auth/register", gin.H{
			"email":    "short@example.com",
			"password": "short",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("邮箱格式无效返回400", func(t *testing.T) {
		f := newRouterFixture(t)

		w := f.doJSON(t, http.MethodPost, "/v1/auth/register", gin.H{
			"email":    "not-an-email",
			"password": "long-enough-password",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLogin(t *testing.T) {
	t.Run("正确凭证登录成功", func(t *testing.T) {
		f := newRouterFixture(t)
		f.registerUser(t, "bob@example.com")

		w := f.doJSON(t, http.MethodPost, "/v1/auth/login", gin.H{
			"email":    "bob@example.com",
			"password": "long-enough-password",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp authResponse
		decodeData(t, w, &resp)
		assert.NotEmpty(t, resp.AccessToken)
	})

	t.Run("密码错误返回401", func(t *testing.T) {
		f := newRouterFixture(t)
		f.registerUser(t, "carol@example.com")

		w := f.doJSON(t, http.MethodPost, "/v1/auth/login", gin.H{
			"email":    "carol@example.com",
			"password": "wrong-password-entirely",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("未注册邮箱返回401", func(t *testing.T) {
		f := newRouterFixture(t)

		w := f.doJSON(t, http.MethodPost, "/v1/auth/login", gin.H{
			"email":    "ghost@example.com",
			"password": "long-enough-password",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRefresh(t *testing.T) {
	t.Run("刷新令牌换新令牌", func(t *testing.T) {
		f := newRouterFixture(t)
		registered := f.registerUser(t, "dave@example.com")

		w := f.doJSON(t, http.MethodPost, "/v1/auth/refresh", gin.H{
			"refreshToken": registered.RefreshToken,
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp authResponse
		decodeData(t, w, &resp)
		assert.NotEmpty(t, resp.AccessToken)
	})

	t.Run("伪造令牌返回401", func(t *testing.T) {
		f := newRouterFixture(t)

		w := f.doJSON(t, http.MethodPost, "/v1/auth/refresh", gin.H{
			"refreshToken": "not-a-real-token",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestMe(t *testing.T) {
	t.Run("携带令牌返回当前用户", func(t *testing.T) {
		f := newRouterFixture(t)
		registered := f.registerUser(t, "erin@example.com")

		w := f.doJSON(t, http.MethodGet, "/v1/auth/me", nil, map[string]string{
			"Authorization": "Bearer " + registered.AccessToken,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp userResponse
		decodeData(t, w, &resp)
		assert.Equal(t, "erin@example.com", resp.Email)
	})

	t.Run("缺少令牌返回401", func(t *testing.T) {
		f := newRouterFixture(t)

		w := f.doJSON(t, http.MethodGet, "/v1/auth/me", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
