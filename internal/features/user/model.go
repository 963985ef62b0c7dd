package user

// User is a directory entry. IDs are the same strings that appear in JWT claims.
type User struct {
	ID      string   `json:"id" bson:"_id"`
	Name    string   `json:"name" bson:"name"`
	Email   string   `json:"email" bson:"email"`
	Roles   []string `json:"roles" bson:"roles"`
	Enabled bool     `json:"enabled" bson:"enabled"`
}
