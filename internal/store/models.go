package store

import (
	"slices"
	"time"
)

const (
	AuthProviderLocal  = "local"
	AuthProviderGoogle = "google"

	SourceTypeArticle = "article"
	SourceTypeVideo   = "video"

	CategoryGeneral = "general"
)

// SourceCategories lists the accepted values of Source.Category.
var SourceCategories = []string{
	"weight-loss",
	"muscle-building",
	"home-workout",
	"injury-management",
	"nutrition",
	"cardio",
	"beginner",
	"advanced",
	CategoryGeneral,
}

// ValidCategory reports whether c is one of SourceCategories.
func ValidCategory(c string) bool {
	return slices.Contains(SourceCategories, c)
}

type Goals struct {
	Primary      string   `json:"primary,omitempty"`
	TargetWeight *float64 `json:"targetWeight,omitempty"`
}

type Preferences struct {
	Injury   string `json:"injury,omitempty"`
	Cuisine  string `json:"cuisine,omitempty"`
	DietType string `json:"dietType,omitempty"`
}

// Profile is the part of a user that feeds recommendations. It can also arrive
// directly in a request body without being persisted.
type Profile struct {
	Name        string      `json:"name,omitempty"`
	Age         *float64    `json:"age,omitempty"`
	Height      *float64    `json:"height,omitempty"`
	Weight      *float64    `json:"weight,omitempty"`
	Goals       Goals       `json:"goals"`
	Preferences Preferences `json:"preferences"`
}

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // Do not expose this in JSON responses
	AuthProvider string `json:"authProvider"`
	GoogleSub    string `json:"-"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	Profile
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Workout struct {
	Type     string  `json:"type"`
	Duration float64 `json:"duration"`
}

type Nutrition struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
}

// LogEntry is one dated activity record. Date is stored normalized by
// NormalizeLogDate (YYYY-MM-DD, or UTC RFC 3339 when a time was given).
type LogEntry struct {
	ID         string     `json:"id,omitempty"`
	UserID     string     `json:"userId,omitempty"`
	Date       string     `json:"date"`
	Weight     *float64   `json:"weight,omitempty"`
	SleepHours *float64   `json:"sleepHours,omitempty"`
	Workout    *Workout   `json:"workout,omitempty"`
	Nutrition  *Nutrition `json:"nutrition,omitempty"`
	CreatedAt  time.Time  `json:"createdAt,omitempty"`
}

type VideoRef struct {
	VideoID      string `json:"videoId,omitempty" yaml:"videoId"`
	ChannelTitle string `json:"channelTitle,omitempty" yaml:"channelTitle"`
	Thumbnail    string `json:"thumbnail,omitempty" yaml:"thumbnail"`
}

// Source is one knowledge snippet of the recommendation corpus.
type Source struct {
	ID        string    `json:"id" yaml:"-"`
	Title     string    `json:"title" yaml:"title"`
	URL       string    `json:"url" yaml:"url"`
	Type      string    `json:"type" yaml:"type"`
	Content   string    `json:"content" yaml:"content"`
	Tags      []string  `json:"tags" yaml:"tags"`
	Category  string    `json:"category" yaml:"category"`
	Video     *VideoRef `json:"youtube,omitempty" yaml:"youtube"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
}

// ScoredSource is a corpus match with the number of request tags it carries.
type ScoredSource struct {
	Source
	MatchScore int `json:"matchScore"`
}
