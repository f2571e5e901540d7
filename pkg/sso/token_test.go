package sso

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractAccessToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{"followed by other parameters", "https://x/launcher?client_id=eveLauncherTQ#access_token=ABC123&expires=60", "ABC123", true},
		{"last parameter", "https://x/launcher#access_token=ABC123", "ABC123", true},
		{"ampersand in query before fragment", "https://x/launcher?a=1&b=2#access_token=TOKEN&token_type=Bearer", "TOKEN", true},
		{"no fragment", "https://x/launcher?client_id=eveLauncherTQ", "", false},
		{"other fragment", "https://x/launcher#state=1", "", false},
		{"empty value", "https://x/launcher#access_token=&expires=60", "", false},
		{"not a url", "::::#access_token=raw", "raw", true},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractAccessToken(tt.url)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
