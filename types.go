package amonheights

import "github.com/iseigbadon/amonheights-2.0/storage"

// loginRequest is the POST /api/admin/login body
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the successful login body
type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// checkResponse is the GET /api/admin/check body for both outcomes
type checkResponse struct {
	Authenticated bool `json:"authenticated"`
}

// propertyResponse wraps a single listing in mutation responses
type propertyResponse struct {
	Success  bool              `json:"success"`
	Property *storage.Property `json:"property"`
}

// messageResponse is the generic success body
type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// uploadResponse is the successful image upload body
type uploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// errorResponse is the uniform failure body across the API
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
