package auth

// HttpResp represents the standard HTTP response structure.
type HttpResp struct {
	Status  string      `json:"status" example:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message" example:"Operation completed successfully"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// UserInfo represents the authenticated user's information.
type UserInfo struct {
	Sub  string `json:"sub"`
	Name string `json:"name,omitempty"`
}

// StatusResponse defines the structure of the /status response.
type StatusResponse struct {
	Authenticated bool     `json:"authenticated"`
	AuthType      string   `json:"auth_type"`
	User          UserInfo `json:"user,omitempty"`
	Message       string   `json:"message,omitempty"`
}
