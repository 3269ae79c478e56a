package models

type Channel struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
	// CreatedSeq is the channel's creation ordinal and its ranking tiebreak.
	CreatedSeq int64 `json:"created_seq"`
	// MemberCount and MessageCount are the ranks currently held in the
	// channel rankings.
	MemberCount  int64    `json:"member_count"`
	MessageCount int64    `json:"message_count"`
	Members      []string `json:"members"`
}

// IsMember reports whether user appears in the member list.
func (c *Channel) IsMember(user string) bool {
	for _, m := range c.Members {
		if m == user {
			return true
		}
	}
	return false
}
