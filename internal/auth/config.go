package auth

// Environment variable names
const (
	EnvAuthToken = "ROOMBOOK_AUTH_TOKEN"
)

// sessionFileMode keeps the stored session readable by its owner only.
const sessionFileMode = 0600
