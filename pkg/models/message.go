package models

type Message struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Author  string `json:"author"`
	Text    string `json:"text"`
	// Seq is the message's position in its channel, starting at 1.
	Seq int64 `json:"seq"`
}
