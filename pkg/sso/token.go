package sso

import "strings"

// ExtractAccessToken returns the access token carried in the fragment of a
// redirect URL, e.g. "https://host/launcher?x=y#access_token=ABC&expires_in=60"
// yields "ABC". The URL is not parsed; only the presence of the marker counts,
// so malformed URLs simply report false.
func ExtractAccessToken(rawURL string) (string, bool) {
	return extractAfterMarker(rawURL, DefaultMarkers().AccessTokenKey)
}

// extractAfterMarker returns the text between marker and the next '&' after it.
func extractAfterMarker(s, marker string) (string, bool) {
	if marker == "" {
		return "", false
	}
	i := strings.Index(s, marker)
	if i == -1 {
		return "", false
	}
	value := s[i+len(marker):]
	if end := strings.IndexByte(value, '&'); end != -1 {
		value = value[:end]
	}
	if value == "" {
		return "", false
	}
	return value, true
}
