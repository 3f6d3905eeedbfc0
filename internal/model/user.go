package model

// User is one entry of the server roster. The roster arrives as a full
// snapshot on every user_list broadcast; there is no incremental mutation.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
	Room     string `json:"room,omitempty"`
}
