package telegram

import "crypto/hmac"

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// ValidSecret compares in constant time. Empty values never match.
func ValidSecret(expected, received string) bool {
	if expected == "" || received == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(received))
}
