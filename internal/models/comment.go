package models

// Comment is a user's review of a solution. A user holds at most one
// comment per solution, and that comment carries their rating.
type Comment struct {
	Base
	SolutionID uint     `gorm:"not null;uniqueIndex:idx_comment_solution_user" json:"solutionId"`
	UserID     uint     `gorm:"not null;uniqueIndex:idx_comment_solution_user" json:"userId"`
	User       *UserRef `gorm:"-" json:"user,omitempty"`
	Content    string   `gorm:"type:text" json:"content"`
	Rating     *int     `json:"rating"`
	Likes      []uint   `gorm:"serializer:json;type:text" json:"likes"`
	Dislikes   []uint   `gorm:"serializer:json;type:text" json:"dislikes"`
	IsActive   bool     `gorm:"not null;index" json:"isActive"`
}

func (Comment) TableName() string { return "comments" }

func (c *Comment) Clone() Comment {
	out := *c
	out.User = cloneRef(c.User)
	out.Likes = cloneIDs(c.Likes)
	out.Dislikes = cloneIDs(c.Dislikes)
	if c.Rating != nil {
		r := *c.Rating
		out.Rating = &r
	}
	return out
}

// ToggleLike flips userID's like. Liking clears a dislike from the same
// user. Returns whether the comment is now liked by userID.
func (c *Comment) ToggleLike(userID uint) bool {
	if containsID(c.Likes, userID) {
		c.Likes = removeID(c.Likes, userID)
		return false
	}
	c.Likes = append(c.Likes, userID)
	c.Dislikes = removeID(c.Dislikes, userID)
	return true
}

// ToggleDislike mirrors ToggleLike.
func (c *Comment) ToggleDislike(userID uint) bool {
	if containsID(c.Dislikes, userID) {
		c.Dislikes = removeID(c.Dislikes, userID)
		return false
	}
	c.Dislikes = append(c.Dislikes, userID)
	c.Likes = removeID(c.Likes, userID)
	return true
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []uint, id uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
