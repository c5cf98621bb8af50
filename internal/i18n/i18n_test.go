package i18n

import (
	"testing"

	"github.com/ai-pro-cosmic-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalizer(t *testing.T) *Localizer {
	t.Helper()
	l, err := NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "en",
		Languages:       []string{"en", "zh"},
		Directory:       "../../configs/i18n",
	})
	require.NoError(t, err)
	return l
}

func TestGet(t *testing.T) {
	l := newTestLocalizer(t)

	assert.Equal(t, "Failed to fetch users", l.Get("en", MsgFetchUsers, nil))
	assert.Equal(t, "获取用户失败", l.Get("zh", MsgFetchUsers, nil))
	assert.Equal(t, "Conversation not found", l.Get("en", MsgNotFound, map[string]interface{}{"Resource": "Conversation"}))
	assert.Equal(t, "Failed to fetch users", l.Get("fr", MsgFetchUsers, nil))
	assert.Equal(t, "no_such_message", l.Get("en", "no_such_message", nil))
}

func TestMatch(t *testing.T) {
	l := newTestLocalizer(t)

	assert.Equal(t, "zh", l.Match("zh-CN,zh;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", l.Match("en-US"))
	assert.Equal(t, "en", l.Match("fr-FR"))
	assert.Equal(t, "en", l.Match(""))
}

func TestMissingLanguageFile(t *testing.T) {
	_, err := NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "en",
		Languages:       []string{"de"},
		Directory:       "../../configs/i18n",
	})
	assert.ErrorContains(t, err, "failed to load language file de")
}
