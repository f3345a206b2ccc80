package api

import "github.com/opensource-finance/kestrel/internal/domain"

// DemoData is the response body of GET /demo-data.
type DemoData struct {
	LegitimateProfile  domain.ProfileInput `json:"legitimate_profile"`
	SuspiciousProfile  domain.ProfileInput `json:"suspicious_profile"`
	RomanceScamProfile domain.ProfileInput `json:"romance_scam_profile"`
}

// Demo returns the canned profiles served to the demo frontend.
func Demo() DemoData {
	return DemoData{
		LegitimateProfile: domain.ProfileInput{
			AccountAgeDays:   365,
			Followers:        250,
			Following:        180,
			PostCount:        120,
			ProfileCompleted: true,
			Messages: []string{
				"Thanks for connecting! Looking forward to networking.",
				"Great article you shared about industry trends.",
			},
		},
		SuspiciousProfile: domain.ProfileInput{
			AccountAgeDays:   45,
			Followers:        15,
			Following:        800,
			PostCount:        200,
			ProfileCompleted: false,
			Messages: []string{
				"Hello! I'm new to this platform.",
				"Looking to connect with professionals in your field.",
				"Would love to discuss potential opportunities.",
			},
		},
		RomanceScamProfile: domain.ProfileInput{
			AccountAgeDays:   7,
			Followers:        2,
			Following:        500,
			PostCount:        50,
			ProfileCompleted: false,
			Messages: []string{
				"My darling, I love you so much already.",
				"I am engineer working on oil rig, need emergency money.",
				"Trust me honey, send Western Union transfer immediately.",
			},
		},
	}
}
