package models

// RootUsername is the distinguished account that owns every other account.
const RootUsername = "admin"

// RootDisplayName is the display name given to the root account on bootstrap.
const RootDisplayName = "Admin"

type Account struct {
	Username     string `json:"username"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
}
