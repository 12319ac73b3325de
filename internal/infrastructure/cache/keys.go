package cache

// Key layout shared by the Redis stores
const (
	keyPrefix = "fraud:"

	// sorted set of encoded samples scored by observation time (unix ms)
	profileKeyPrefix = keyPrefix + "profile:"
	// sorted set of user IDs scored by the unix time their profile expires
	profileIndexKey = keyPrefix + "profiles:index"
	// hash of userID to encoded fingerprint
	devicesKey = keyPrefix + "devices"
	// set of canonical IP strings
	blacklistKey = keyPrefix + "blacklist"
)

func profileKey(userID string) string {
	return profileKeyPrefix + userID
}
