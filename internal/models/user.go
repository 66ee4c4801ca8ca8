package models

// User is the minimal identity the server tracks. Usernames are the primary
// key everywhere: the credential table, the membership mapping and the
// per-room peer registry.
type User struct {
	Username string `json:"username"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
