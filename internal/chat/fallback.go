package chat

import "strings"

type rule struct {
	keywords []string
	reply    string
}

var rules = []rule{
	{
		keywords: []string{"emergency", "urgent", "flood", "cyclone", "trapped"},
		reply:    "If anyone is in immediate danger, call the national emergency number 999 first. You can then post a relief request marked critical so nearby NGOs and volunteers see it right away.",
	},
	{
		keywords: []string{"donate", "donation", "give"},
		reply:    "To donate, open Donations and choose New donation. Describe the items, quantity and pickup address. An admin validates it and it then becomes available for matching.",
	},
	{
		keywords: []string{"request", "need", "relief"},
		reply:    "NGOs can post a relief request with the item, quantity, number of beneficiaries and delivery address. Once validated it is matched with available donations.",
	},
	{
		keywords: []string{"volunteer", "join"},
		reply:    "Register with the volunteer role, then create your volunteer profile with your vehicle type, capacity and service area. You will be notified when a delivery is assigned to you.",
	},
	{
		keywords: []string{"delivery", "track", "status", "where"},
		reply:    "Open Deliveries to follow each stage from assignment to pickup and drop-off. The volunteer updates the status and location along the way.",
	},
	{
		keywords: []string{"match", "matching"},
		reply:    "Matches pair an available donation with an active relief request. A match becomes assigned once a volunteer takes the delivery.",
	},
	{
		keywords: []string{"hello", "hi", "hey", "salam"},
		reply:    "Hello! I can help you donate, request relief, volunteer or follow a delivery. What would you like to do?",
	},
}

const defaultReply = "I'm having trouble reaching the assistant right now. You can still create donations, post relief requests, manage your volunteer profile and track deliveries from the dashboard."

// Fallback answers from a fixed keyword table when the agent is unavailable
func Fallback(message string) string {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, rl := range rules {
		for _, w := range words {
			for _, k := range rl.keywords {
				if w == k {
					return rl.reply
				}
			}
		}
	}
	return defaultReply
}
