// Package buildinfo holds values baked into the binary at link time.
//
//	go build -ldflags "-X github.com/roombook/roombook-cli/internal/buildinfo.OAuthRedirectURI=https://app.example.com/auth/callback"
package buildinfo

var (
	// Version of the roombook binary.
	Version = "dev"

	// OAuthRedirectURI must match the redirect URI registered with the OAuth provider.
	// It is left empty when the build does not set it.
	OAuthRedirectURI = ""
)
