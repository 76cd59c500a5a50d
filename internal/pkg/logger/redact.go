package logger

import (
	"regexp"
	"strings"
)

var secretKeys = []string{"token", "secret", "password", "api_key", "apikey", "authorization"}

// access_token=... in URLs logged by platform clients.
var tokenParam = regexp.MustCompile(`(?i)(access_token|developer_token)=[^&\s"]+`)

func redactValue(key, val string) string {
	k := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return RedactSecret(val)
		}
	}
	return tokenParam.ReplaceAllString(val, "$1=***")
}

// RedactSecret masks a credential for safe logging, keeping the last four
// characters of long values.
// "EAAGm0PX4ZCpsBA1234" → "***1234"
func RedactSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return "***" + s[len(s)-4:]
}
