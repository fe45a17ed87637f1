package intasend

import "crypto/subtle"

// VerifyChallenge 校验回调中的共享 challenge，未配置时一律拒绝
func VerifyChallenge(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
