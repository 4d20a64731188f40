// Package endpoints derives the booking API endpoint URLs from the hostname the
// client is pointed at.
package endpoints

const (
	// LocalHostname is the hostname that selects the local development API.
	LocalHostname = "localhost"

	// LocalBaseURL is the API base URL used during local development.
	LocalBaseURL = "http://localhost:3000/api"

	// AuthCallbackPath is appended to the base URL for the OAuth callback.
	AuthCallbackPath = "/auth/callback"

	// BookingsPath is appended to the base URL for the bookings resource.
	BookingsPath = "/bookings"

	// RoomsPath is appended to the base URL for the rooms resource.
	RoomsPath = "/rooms"
)

// Environment is either the local development environment or a remote host.
type Environment struct {
	host string
}

// FromHostname classifies a hostname. Only the exact string "localhost" is local.
func FromHostname(host string) Environment {
	return Environment{host: host}
}

// IsLocal reports whether the environment is local development.
func (e Environment) IsLocal() bool {
	return e.host == LocalHostname
}

// Host returns the hostname the environment was built from.
func (e Environment) Host() string {
	return e.host
}

// BaseURL returns the API base URL for the environment.
func (e Environment) BaseURL() string {
	if e.IsLocal() {
		return LocalBaseURL
	}
	return "https://" + e.host + "/api"
}

func (e Environment) String() string {
	if e.IsLocal() {
		return "local"
	}
	return "remote(" + e.host + ")"
}

// Endpoints is the resolved set of URLs the client talks to.
type Endpoints struct {
	APIBaseURL       string `json:"api_base_url"`
	AuthCallbackURL  string `json:"auth_callback_url"`
	OAuthRedirectURI string `json:"oauth_redirect_uri"`
	BookingsURL      string `json:"bookings_url"`
	RoomsURL         string `json:"rooms_url"`
}

// Derive builds the dependent endpoints from a base URL. The redirect URI is
// copied as given; an empty value stays empty.
func Derive(baseURL, oauthRedirectURI string) Endpoints {
	return Endpoints{
		APIBaseURL:       baseURL,
		AuthCallbackURL:  baseURL + AuthCallbackPath,
		OAuthRedirectURI: oauthRedirectURI,
		BookingsURL:      baseURL + BookingsPath,
		RoomsURL:         baseURL + RoomsPath,
	}
}

// Resolve derives the endpoints for env.
func Resolve(env Environment, oauthRedirectURI string) Endpoints {
	return Derive(env.BaseURL(), oauthRedirectURI)
}
