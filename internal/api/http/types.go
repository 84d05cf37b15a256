package http

import "github.com/kiloOhm/kilo-zone/internal/api/service"

// HealthResponse is returned by /livez and /readyz. Checks is only set by
// /readyz.
type HealthResponse struct {
	// Status is "ok" or "degraded"
	Status  string        `json:"status" example:"ok"`
	Uptime  string        `json:"uptime,omitempty" example:"1h23m45s"`
	Version string        `json:"version,omitempty" example:"v0.1.0"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each collaborator as "ok" or "error: ...".
type HealthChecks struct {
	Cache   string `json:"cache"`
	Objects string `json:"objects"`
}

type StatusResponse struct {
	Status string `json:"status" example:"authenticated"`
}

// MeResponse describes the caller. Profile fields are only known for
// browser sessions, where an ID token is available.
type MeResponse struct {
	Subject       string   `json:"sub" example:"auth0|65f0c2"`
	DisplayName   string   `json:"display_name,omitempty" example:"ada"`
	Email         string   `json:"email,omitempty" example:"ada@example.com"`
	EmailVerified bool     `json:"email_verified,omitempty"`
	Nickname      string   `json:"nickname,omitempty"`
	Name          string   `json:"name,omitempty"`
	Scopes        []string `json:"scopes"`
}

type UploadResponse struct {
	Uploaded service.Uploaded `json:"uploaded"`
}
