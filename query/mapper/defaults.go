package mapper

import "sync"

// authPairs covers the user, session, account, two-factor, passkey and
// rate-limit tables of the identity service.
var authPairs = []Pair{
	{"email_verified", "emailVerified"},
	{"created_at", "createdAt"},
	{"updated_at", "updatedAt"},
	{"full_name", "fullName"},
	{"is_active", "isActive"},
	{"last_login_at", "lastLoginAt"},
	{"two_factor_enabled", "twoFactorEnabled"},
	{"ban_reason", "banReason"},
	{"ban_expires", "banExpires"},

	{"expires_at", "expiresAt"},
	{"ip_address", "ipAddress"},
	{"user_agent", "userAgent"},
	{"user_id", "userId"},
	{"impersonated_by", "impersonatedBy"},

	{"account_id", "accountId"},
	{"provider_id", "providerId"},
	{"access_token", "accessToken"},
	{"refresh_token", "refreshToken"},
	{"id_token", "idToken"},
	{"access_token_expires_at", "accessTokenExpiresAt"},
	{"refresh_token_expires_at", "refreshTokenExpiresAt"},

	{"backup_codes", "backupCodes"},

	{"public_key", "publicKey"},
	{"credential_id", "credentialID"},
	{"device_type", "deviceType"},
	{"backed_up", "backedUp"},

	{"last_reset", "lastReset"},
}

// Column spellings written by older schema versions.
var authAliases = map[string]string{
	"access_token_expiresat":  "accessTokenExpiresAt",
	"refresh_tokene_xpiresat": "refreshTokenExpiresAt",
}

var defaultMap = sync.OnceValue(func() *FieldNameMap {
	return MustFieldNameMap(authPairs, authAliases)
})

// DefaultFieldNames returns the shared map for the identity schema.
func DefaultFieldNames() *FieldNameMap {
	return defaultMap()
}
