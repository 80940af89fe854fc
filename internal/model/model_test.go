package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlindIndex_Parse(t *testing.T) {
	t.Parallel()

	b := NewBlindIndex([]byte{0x01, 0x02}, []byte{0xaa})
	require.Equal(t, BlindIndex("0102:aa"), b)

	salt, hash, err := b.Parse()
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, salt)
	require.Equal(t, []byte{0xaa}, hash)

	for _, bad := range []BlindIndex{"", "abc", ":aa", "01:", "zz:aa", "01:zz"} {
		_, _, err := bad.Parse()
		require.Error(t, err, "input %q", bad)
	}
}

func TestEncryptedValue_Complete(t *testing.T) {
	t.Parallel()

	v := EncryptedValue{Ciphertext: "a", WrappedDataKey: "b", IV: "c", AuthTag: "d"}
	require.True(t, v.Complete())
	v.AuthTag = ""
	require.False(t, v.Complete())
}

func TestWebhookConfig_Subscribed(t *testing.T) {
	t.Parallel()

	c := WebhookConfig{Events: []string{"host_alert"}}
	require.True(t, c.Subscribed("host_alert"))
	require.False(t, c.Subscribed("checkout_alert"))
	require.True(t, WebhookConfig{Events: []string{"*"}}.Subscribed("anything"))
}
