package models

import (
	"strings"
	"time"
)

const (
	StatusGenerated  = "generated"
	StatusDownloaded = "downloaded"

	CoverDefault = "default"
	CoverCustom  = "custom"

	// Custom marks an activity or hotel whose display text is typed by the agent.
	Custom = "custom"
)

// Itinerary is stored under its owner: the pair (UserID, ID) addresses it.
type Itinerary struct {
	ID           string    `json:"id" bson:"id"`
	UserID       string    `json:"userId" bson:"userId"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	LastModified time.Time `json:"lastModified" bson:"lastModified"`
	Status       string    `json:"status" bson:"status"`
	Data         Payload   `json:"data" bson:"data"`
}

// Payload is the trip itself, as entered by the agent.
type Payload struct {
	Route            string      `json:"route" bson:"route" validate:"required"`
	TouristName      string      `json:"touristName" bson:"touristName" validate:"required"`
	Travelers        int         `json:"travelers" bson:"travelers" validate:"gte=1"`
	StartDate        string      `json:"startDate" bson:"startDate" validate:"required,datetime=2006-01-02"`
	Days             int         `json:"days" bson:"days" validate:"gte=1"`
	CoverImage       string      `json:"coverImage" bson:"coverImage" validate:"omitempty,oneof=default custom"`
	CustomCoverImage string      `json:"customCoverImage,omitempty" bson:"customCoverImage,omitempty" validate:"required_if=CoverImage custom"`
	DailyPlans       []DailyPlan `json:"dailyPlans" bson:"dailyPlans" validate:"required,min=1,dive"`
}

type Meals struct {
	Breakfast bool `json:"breakfast" bson:"breakfast"`
	Lunch     bool `json:"lunch" bson:"lunch"`
	Dinner    bool `json:"dinner" bson:"dinner"`
}

type DailyPlan struct {
	Place          string `json:"place" bson:"place" validate:"required"`
	Activity       string `json:"activity" bson:"activity" validate:"required"`
	CustomActivity string `json:"customActivity,omitempty" bson:"customActivity,omitempty" validate:"required_if=Activity custom"`
	Meals          *Meals `json:"meals,omitempty" bson:"meals,omitempty"`
	OvernightStay  bool   `json:"overnightStay" bson:"overnightStay"`
	Hotel          string `json:"hotel,omitempty" bson:"hotel,omitempty"`
	CustomHotel    string `json:"customHotel,omitempty" bson:"customHotel,omitempty" validate:"required_if=Hotel custom"`
	Description    string `json:"description,omitempty" bson:"description,omitempty"`
}

// Activities lists the activity codes the itinerary form offers.
var Activities = map[string]string{
	"arrival":     "Arrival & Transfer",
	"departure":   "Departure",
	"sightseeing": "City Sightseeing",
	"safari":      "Wildlife Safari",
	"beach":       "Beach Leisure",
	"hiking":      "Hiking",
	"temple":      "Temple Visit",
	"tea_estate":  "Tea Estate Tour",
	"whale":       "Whale Watching",
	"leisure":     "Day at Leisure",
}

// Hotels lists the partner hotels the itinerary form offers.
var Hotels = map[string]string{
	"cinnamon_grand": "Cinnamon Grand Colombo",
	"jetwing_lake":   "Jetwing Lake Dambulla",
	"heritance_tea":  "Heritance Tea Factory",
	"amaya_hills":    "Amaya Hills Kandy",
	"jetwing_yala":   "Jetwing Yala",
	"mermaid_resort": "Mermaid Hotel & Club",
}

// ResolvedActivity is the display text for the day's activity.
func (d DailyPlan) ResolvedActivity() string {
	return resolve(d.Activity, d.CustomActivity, Activities)
}

// ResolvedHotel is the display name of the day's hotel, or "" when none is set.
func (d DailyPlan) ResolvedHotel() string {
	return resolve(d.Hotel, d.CustomHotel, Hotels)
}

func resolve(value, custom string, labels map[string]string) string {
	value = strings.TrimSpace(value)
	if value == Custom {
		return strings.TrimSpace(custom)
	}
	if label, ok := labels[value]; ok {
		return label
	}
	return value
}
