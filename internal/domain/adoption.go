/**
 * @description
 * Adoption request and record models. An AdoptionRequest is ephemeral checkout
 * state; an AdoptionRecord is the durable document created once per captured
 * payment.
 */
package domain

import (
	"sort"
	"time"
)

// Adoption record statuses.
const (
	AdoptionStatusActive = "active"
	AdoptionStatusGift   = "gift"
)

// Contact holds the adopter's contact details.
type Contact struct {
	FirstName string `json:"firstName" firestore:"firstName"`
	LastName  string `json:"lastName" firestore:"lastName"`
	Email     string `json:"email" firestore:"email"`
	Phone     string `json:"phone" firestore:"phone"`
	Address   string `json:"address" firestore:"address"`
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// GiftDetails is present when the adoption is a gift.
type GiftDetails struct {
	RecipientName string `json:"recipientName" firestore:"recipientName"`
	Message       string `json:"message,omitempty" firestore:"message"`
}

// AdoptionRequest is the payload gathered by the checkout form.
type AdoptionRequest struct {
	TreeID    string       `json:"treeId"`
	PlanYears int          `json:"planYears"`
	Contact   Contact      `json:"contact"`
	Gift      *GiftDetails `json:"gift,omitempty"`
}

// MaintenanceTask is one recurring care activity for an adopted tree.
type MaintenanceTask struct {
	Type          string    `json:"type" firestore:"type"`
	FrequencyDays int       `json:"frequencyDays" firestore:"frequencyDays"`
	NextDueAt     time.Time `json:"nextDueAt" firestore:"nextDueAt"`
}

// NFTCertificate links an adoption to its on-chain commemorative token.
type NFTCertificate struct {
	TransactionHash string    `json:"transactionHash" firestore:"transactionHash"`
	ContractAddress string    `json:"contractAddress" firestore:"contractAddress"`
	VerifiedAt      time.Time `json:"verifiedAt" firestore:"verifiedAt"`
}

// AdoptionRecord is the persisted proof of a paid adoption.
type AdoptionRecord struct {
	ID                  string            `json:"id" firestore:"-"`
	UserID              string            `json:"userId" firestore:"userId"`
	TreeID              string            `json:"treeId" firestore:"treeId"`
	TreeName            string            `json:"treeName" firestore:"treeName"`
	Species             string            `json:"species" firestore:"species"`
	Duration            int               `json:"duration" firestore:"duration"`
	AmountPaid          int64             `json:"amount" firestore:"amount"`
	Currency            string            `json:"currency" firestore:"currency"`
	PaymentID           string            `json:"paymentId" firestore:"paymentId"`
	CheckoutID          string            `json:"checkoutId,omitempty" firestore:"checkoutId"`
	Status              string            `json:"status" firestore:"status"`
	Contact             Contact           `json:"contact" firestore:"contact"`
	Gift                *GiftDetails      `json:"gift,omitempty" firestore:"gift"`
	Location            Location          `json:"location" firestore:"location"`
	Health              HealthSnapshot    `json:"health" firestore:"health"`
	ImpactKg            float64           `json:"impactKg" firestore:"impactKg"`
	MaintenanceSchedule []MaintenanceTask `json:"maintenanceSchedule" firestore:"maintenanceSchedule"`
	NFT                 *NFTCertificate   `json:"nft,omitempty" firestore:"nft"`
	ExpiresAt           time.Time         `json:"expiresAt" firestore:"expiresAt"`
	CreatedAt           time.Time         `json:"createdAt" firestore:"createdAt"`
}

var maintenanceCadence = []struct {
	kind string
	days int
}{
	{kind: "watering", days: 7},
	{kind: "health_check", days: 30},
	{kind: "fertilizing", days: 90},
	{kind: "pruning", days: 180},
}

// BuildMaintenanceSchedule returns the care schedule for a tree adopted at
// createdAt, ordered by next due date.
func BuildMaintenanceSchedule(createdAt time.Time) []MaintenanceTask {
	tasks := make([]MaintenanceTask, 0, len(maintenanceCadence))
	for _, c := range maintenanceCadence {
		tasks = append(tasks, MaintenanceTask{
			Type:          c.kind,
			FrequencyDays: c.days,
			NextDueAt:     createdAt.AddDate(0, 0, c.days),
		})
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].NextDueAt.Before(tasks[j].NextDueAt)
	})
	return tasks
}

// NewAdoptionRecord shapes the record written after a confirmed payment.
func NewAdoptionRecord(userID string, tree TreeListing, plan AdoptionPlan, req AdoptionRequest, intent PaymentIntent, now time.Time) AdoptionRecord {
	status := AdoptionStatusActive
	if req.Gift != nil {
		status = AdoptionStatusGift
	}

	return AdoptionRecord{
		ID:                  intent.ID,
		UserID:              userID,
		TreeID:              tree.ID,
		TreeName:            tree.Name,
		Species:             tree.CommonName,
		Duration:            plan.Years,
		AmountPaid:          plan.Price,
		Currency:            intent.Currency,
		PaymentID:           intent.ID,
		Status:              status,
		Contact:             req.Contact,
		Gift:                req.Gift,
		Location:            tree.Location,
		Health:              tree.Health,
		ImpactKg:            tree.ImpactKg(plan.Years),
		MaintenanceSchedule: BuildMaintenanceSchedule(now),
		ExpiresAt:           now.AddDate(plan.Years, 0, 0),
		CreatedAt:           now,
	}
}

// ConfirmationSummary is the display-only payload for the confirmation view.
type ConfirmationSummary struct {
	AdoptionID    string    `json:"adoptionId"`
	TreeName      string    `json:"treeName"`
	Species       string    `json:"species"`
	Duration      int       `json:"duration"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	PaymentID     string    `json:"paymentId"`
	IsGift        bool      `json:"isGift"`
	RecipientName string    `json:"recipientName,omitempty"`
	ImpactKg      float64   `json:"impactKg"`
	ExpiresAt     time.Time `json:"expiresAt"`
	TreeConflict  bool      `json:"treeConflict,omitempty"`
}

// Summary builds the confirmation payload for a record.
func (r AdoptionRecord) Summary() ConfirmationSummary {
	s := ConfirmationSummary{
		AdoptionID: r.ID,
		TreeName:   r.TreeName,
		Species:    r.Species,
		Duration:   r.Duration,
		Amount:     r.AmountPaid,
		Currency:   r.Currency,
		PaymentID:  r.PaymentID,
		IsGift:     r.Status == AdoptionStatusGift,
		ImpactKg:   r.ImpactKg,
		ExpiresAt:  r.ExpiresAt,
	}
	if r.Gift != nil {
		s.RecipientName = r.Gift.RecipientName
	}
	return s
}
