package debrid

import "time"

// Default endpoints for the hosted service. Overridable for tests and
// self-hosted gateways via ClientConfig / FlowConfig.
const (
	DefaultAPIBase   = "https://api.real-debrid.com/rest/1.0"
	DefaultOAuthBase = "https://api.real-debrid.com/oauth/v2"

	// Public client ID registered for open-source applications.
	DefaultClientID = "X245A4XAIBGVM"

	// Device-code grant type used for both the initial token exchange and
	// refresh (refresh passes the refresh token as the code parameter).
	deviceGrantType = "http://oauth.net/grant_type/device/1.0"
)

// RemoteFile is a single file in the account's remote library, as returned
// by the /files listing (or synthesized from the /downloads fallback, in
// which case Hash is empty).
type RemoteFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"filename"`
	Size        int64     `json:"filesize"`
	Hash        string    `json:"hash"`
	MimeType    string    `json:"mimetype"`
	CreatedAt   time.Time `json:"generated"`
	ModifiedAt  time.Time `json:"modified"`
	DownloadURL string    `json:"download"`
}

// User is the authenticated account as returned by /user.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Premium  int64  `json:"premium"` // seconds of premium left, 0 for free accounts
	Type     string `json:"type"`
}

// Credential is an issued OAuth credential. The ClientID/ClientSecret pair
// is minted per device-auth session and is required for refresh exchanges.
type Credential struct {
	ID           int64
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	TokenType    string
	ExpiresAt    time.Time
}

// apiErrorBody is the JSON error envelope returned with non-2xx statuses.
type apiErrorBody struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

// deviceCodeResponse is the wire shape of the device-code issuance endpoint.
type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// deviceCredentialsResponse is returned by the credentials endpoint once
// the user has approved the device in their browser.
type deviceCredentialsResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// tokenResponse is the wire shape of the OAuth token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// oauthErrorBody is the error envelope of the OAuth endpoints. The Error
// field carries the RFC-style code ("authorization_pending", "slow_down").
type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
