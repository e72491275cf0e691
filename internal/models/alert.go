package models

// Alert is a single notification waiting in, or rotated out of, the queue.
type Alert struct {
	ID        string `json:"id"`        // ULID
	Title     string `json:"title"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"createdAt"` // Unix ms
}
