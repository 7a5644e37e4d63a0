package htb

import "time"

// Wire types for the HTB v4 API. Only the fields the relay consumes are
// mapped; everything else in the payload is ignored.

type machinesResponse struct {
	Data []machinePayload `json:"data"`
}

type machinePayload struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	OS             string    `json:"os"`
	DifficultyText string    `json:"difficulty_text"`
	Release        string    `json:"release"`
	Avatar         string    `json:"avatar"`
	FirstCreator   []creator `json:"firstCreator"`
	Retiring       *retiring `json:"retiring"`
}

type creator struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type retiring struct {
	Name           string `json:"name"`
	OS             string `json:"os"`
	DifficultyText string `json:"difficulty_text"`
}

type challengesResponse struct {
	Data []challengePayload `json:"data"`
}

type challengePayload struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Difficulty   string `json:"difficulty"`
	CategoryName string `json:"category_name"`
	ReleaseDate  string `json:"release_date"`
}

type noticesResponse struct {
	Data []noticePayload `json:"data"`
}

type noticePayload struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Profile types for the enrichment endpoints, shared with app/osint.

type MachineProfile struct {
	ID         int64
	Name       string
	OS         string
	Difficulty string
	AvatarURL  string
	Makers     []Maker
}

type Maker struct {
	ID   int64
	Name string
}

type MakerProfile struct {
	ID         int64
	Name       string
	AvatarURL  string
	SystemOwns int
	UserOwns   int
	Respects   int
	Rank       string
	Ranking    int
	Country    string
	Team       string
}

func parseReleaseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
