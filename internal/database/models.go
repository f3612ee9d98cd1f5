package database

import "time"

// Video is one published catalog entry.
type Video struct {
	ID               int64     `json:"-"`
	UUID             string    `json:"uuid"`
	Title            string    `json:"title"`
	FileName         string    `json:"file_name"`
	OriginalFileName string    `json:"original_file_name"`
	Thumbnail        string    `json:"thumbnail"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	CreatedAt        time.Time `json:"created_at"`
}
