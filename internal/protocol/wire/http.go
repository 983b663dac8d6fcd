package wire

// Room is an entry of the GET /api/rooms response.
type Room struct {
	ID        string         `json:"id"`
	Slug      string         `json:"slug"`
	Title     string         `json:"title"`
	IsPrivate bool           `json:"is_private"`
	CreatedBy string         `json:"created_by"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// APIError is the structured error body returned by the REST backend.
//
// Older endpoints put the reason in Message instead of Error.
type APIError struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Reason returns the most specific human readable failure reason.
func (e APIError) Reason() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// LoginRequest is the POST /api/auth/login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the account object returned by the auth endpoints.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResponse is the POST /api/auth/login response body.
type LoginResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
