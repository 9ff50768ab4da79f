package models

import "time"

type Cleaner struct {
	ID              string    `json:"id" yaml:"id" bson:"_id"`
	Name            string    `json:"name" yaml:"name" bson:"name"`
	Rating          float64   `json:"rating" yaml:"rating" bson:"rating"`
	RatingCount     int       `json:"rating_count" yaml:"-" bson:"rating_count"`
	ExperienceYears int       `json:"experience_years" yaml:"experience_years" bson:"experience_years"`
	Specialties     []string  `json:"specialties" yaml:"specialties" bson:"specialties"`
	AvatarURL       string    `json:"avatar_url,omitempty" yaml:"avatar_url" bson:"avatar_url,omitempty"`
	Available       bool      `json:"available" yaml:"available" bson:"available"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-" bson:"updated_at"`
}
