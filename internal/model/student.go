package model

import "time"

// Student is the exam taker as known to the sandbox server. Students sign in
// out of band; the server only sees their token.
type Student struct {
	ID        int       `json:"id"`
	NISN      string    `json:"nisn"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
