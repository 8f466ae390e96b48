package sbxprocess

import (
	"encoding/base64"

	"golang.org/x/mod/semver"
)

// userAuthHeaders returns the extra headers needed to scope a single
// process/PTY call to envd user. An empty user on a new-enough envd means
// "use the transport's default root auth" (no extra header); on envd old
// enough to predate EnvdVersionDefaultUser, an empty user still needs an
// explicit Basic-auth header for the legacy "user" account.
func userAuthHeaders(user, envdVersion string) map[string]string {
	effective := user
	if effective == "" && versionBefore(envdVersion, EnvdVersionDefaultUser) {
		effective = legacyDefaultUser
	}
	if effective == "" {
		return nil
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(effective + ":"))
	return map[string]string{"Authorization": "Basic " + encoded}
}

func versionBefore(envdVersion, floor string) bool {
	if envdVersion == "" {
		return false
	}
	v := envdVersion
	if v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, floor) < 0
}
