package models

import (
	"fmt"
	"strings"
)

// UnknownStatusError is returned when a status string is not part of an enum
type UnknownStatusError struct {
	Kind    string
	Value   string
	Allowed []string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown %s status %q, allowed: %s", e.Kind, e.Value, strings.Join(e.Allowed, ", "))
}

// transitionTable maps a status to the statuses it may move to.
// order keeps listings stable for error details.
type transitionTable[S ~string] struct {
	kind  string
	order []S
	next  map[S][]S
}

func (t transitionTable[S]) parse(value string) (S, error) {
	for _, s := range t.order {
		if string(s) == value {
			return s, nil
		}
	}
	return "", &UnknownStatusError{Kind: t.kind, Value: value, Allowed: t.names(t.order)}
}

func (t transitionTable[S]) allows(from, to S) bool {
	for _, s := range t.next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// sources lists every status from which to is reachable
func (t transitionTable[S]) sources(to S) []S {
	var out []S
	for _, s := range t.order {
		if t.allows(s, to) {
			out = append(out, s)
		}
	}
	return out
}

func (t transitionTable[S]) names(list []S) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

// DonationStatus is the lifecycle state of a donation
type DonationStatus string

const (
	DonationPendingValidation DonationStatus = "pending_validation"
	DonationAvailable         DonationStatus = "available"
	DonationMatched           DonationStatus = "matched"
	DonationCancelled         DonationStatus = "cancelled"
	DonationRejected          DonationStatus = "rejected"
)

var donationTable = transitionTable[DonationStatus]{
	kind:  "donation",
	order: []DonationStatus{DonationPendingValidation, DonationAvailable, DonationMatched, DonationCancelled, DonationRejected},
	next: map[DonationStatus][]DonationStatus{
		DonationPendingValidation: {DonationAvailable, DonationMatched, DonationCancelled, DonationRejected},
		DonationAvailable:         {DonationMatched, DonationCancelled},
	},
}

// ParseDonationStatus validates a raw donation status
func ParseDonationStatus(value string) (DonationStatus, error) {
	return donationTable.parse(value)
}

// CanTransition reports whether a donation may move from s to to
func (s DonationStatus) CanTransition(to DonationStatus) bool {
	return donationTable.allows(s, to)
}

// DonationStatusesAllowing lists the donation statuses that may move to the target
func DonationStatusesAllowing(to DonationStatus) []DonationStatus {
	return donationTable.sources(to)
}

// RequestStatus is the lifecycle state of a relief request
type RequestStatus string

const (
	RequestPendingValidation RequestStatus = "pending_validation"
	RequestActive            RequestStatus = "active"
	RequestPartiallyMatched  RequestStatus = "partially_matched"
	RequestFulfilled         RequestStatus = "fulfilled"
	RequestCancelled         RequestStatus = "cancelled"
	RequestRejected          RequestStatus = "rejected"
)

var requestTable = transitionTable[RequestStatus]{
	kind: "request",
	order: []RequestStatus{
		RequestPendingValidation, RequestActive, RequestPartiallyMatched,
		RequestFulfilled, RequestCancelled, RequestRejected,
	},
	next: map[RequestStatus][]RequestStatus{
		RequestPendingValidation: {RequestActive, RequestPartiallyMatched, RequestCancelled, RequestRejected},
		RequestActive:            {RequestPartiallyMatched, RequestFulfilled, RequestCancelled},
		RequestPartiallyMatched:  {RequestPartiallyMatched, RequestFulfilled, RequestCancelled},
	},
}

// ParseRequestStatus validates a raw request status
func ParseRequestStatus(value string) (RequestStatus, error) {
	return requestTable.parse(value)
}

// CanTransition reports whether a request may move from s to to
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	return requestTable.allows(s, to)
}

// RequestStatusesAllowing lists the request statuses that may move to the target
func RequestStatusesAllowing(to RequestStatus) []RequestStatus {
	return requestTable.sources(to)
}

// MatchStatus is the lifecycle state of a match
type MatchStatus string

const (
	MatchSuggested MatchStatus = "suggested"
	MatchAssigned  MatchStatus = "assigned"
	MatchCompleted MatchStatus = "completed"
	MatchCancelled MatchStatus = "cancelled"
)

var matchTable = transitionTable[MatchStatus]{
	kind:  "match",
	order: []MatchStatus{MatchSuggested, MatchAssigned, MatchCompleted, MatchCancelled},
	next: map[MatchStatus][]MatchStatus{
		MatchSuggested: {MatchAssigned, MatchCancelled},
		MatchAssigned:  {MatchAssigned, MatchCompleted, MatchCancelled},
	},
}

// ParseMatchStatus validates a raw match status
func ParseMatchStatus(value string) (MatchStatus, error) {
	return matchTable.parse(value)
}

// CanTransition reports whether a match may move from s to to
func (s MatchStatus) CanTransition(to MatchStatus) bool {
	return matchTable.allows(s, to)
}

// IsTerminal reports whether no further transition is possible
func (s MatchStatus) IsTerminal() bool {
	return len(matchTable.next[s]) == 0
}

// MatchStatusesAllowing lists the match statuses that may move to the target
func MatchStatusesAllowing(to MatchStatus) []MatchStatus {
	return matchTable.sources(to)
}

// DeliveryStatus is the lifecycle state of a delivery
type DeliveryStatus string

const (
	DeliveryPendingAssignment   DeliveryStatus = "pending_assignment"
	DeliveryAssigned            DeliveryStatus = "assigned"
	DeliveryInTransitToPickup   DeliveryStatus = "in_transit_to_pickup"
	DeliveryPickedUp            DeliveryStatus = "picked_up"
	DeliveryInTransitToDelivery DeliveryStatus = "in_transit_to_delivery"
	DeliveryDelivered           DeliveryStatus = "delivered"
	DeliveryCompleted           DeliveryStatus = "completed"
	DeliveryCancelled           DeliveryStatus = "cancelled"
)

// deliveryStages is the forward lifecycle order; cancelled sits outside it
var deliveryStages = []DeliveryStatus{
	DeliveryPendingAssignment,
	DeliveryAssigned,
	DeliveryInTransitToPickup,
	DeliveryPickedUp,
	DeliveryInTransitToDelivery,
	DeliveryDelivered,
	DeliveryCompleted,
}

// AllDeliveryStatuses returns every delivery status in lifecycle order
func AllDeliveryStatuses() []DeliveryStatus {
	return append(append([]DeliveryStatus{}, deliveryStages...), DeliveryCancelled)
}

// ParseDeliveryStatus validates a raw delivery status
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	all := AllDeliveryStatuses()
	for _, s := range all {
		if string(s) == value {
			return s, nil
		}
	}
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = string(s)
	}
	return "", &UnknownStatusError{Kind: "delivery", Value: value, Allowed: names}
}

// Rank returns the position in the lifecycle, or -1 for cancelled
func (s DeliveryStatus) Rank() int {
	for i, stage := range deliveryStages {
		if stage == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether the delivery can no longer change
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryCompleted || s == DeliveryCancelled
}

// CanTransition allows staying put, moving forward, or cancelling a live delivery
func (s DeliveryStatus) CanTransition(to DeliveryStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if to == DeliveryCancelled {
		return true
	}
	return to.Rank() >= s.Rank()
}

// NextDeliveryStatuses lists the legal targets from s
func (s DeliveryStatus) NextDeliveryStatuses() []DeliveryStatus {
	var out []DeliveryStatus
	for _, to := range AllDeliveryStatuses() {
		if s.CanTransition(to) {
			out = append(out, to)
		}
	}
	return out
}

// Role is a user role
type Role string

const (
	RoleDonor     Role = "donor"
	RoleNGO       Role = "ngo"
	RoleVolunteer Role = "volunteer"
	RoleAdmin     Role = "admin"
)

// SelfAssignableRoles are the roles a user may pick at registration
func SelfAssignableRoles() []Role {
	return []Role{RoleDonor, RoleNGO, RoleVolunteer}
}

// SelfAssignable reports whether the role can be chosen at registration
func (r Role) SelfAssignable() bool {
	return r == RoleDonor || r == RoleNGO || r == RoleVolunteer
}

// MatchedBy records who proposed a match
type MatchedBy string

const (
	MatchedByAIAgent MatchedBy = "ai_agent"
	MatchedByManual  MatchedBy = "manual"
)
