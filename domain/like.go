package domain

// LikeChange is observed on the likes collection.
type LikeChange struct {
	PostID  string
	UserID  string
	Removed bool
}
