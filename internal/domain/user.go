package domain

import "time"

// UserAggregate is the per-user document holding derived counters and profile.
type UserAggregate struct {
	UserID            string    `json:"userId" firestore:"-"`
	Email             string    `json:"email,omitempty" firestore:"email"`
	DisplayName       string    `json:"displayName,omitempty" firestore:"displayName"`
	Phone             string    `json:"phone,omitempty" firestore:"phone"`
	Address           string    `json:"address,omitempty" firestore:"address"`
	TreesPlanted      int64     `json:"treesPlanted" firestore:"treesPlanted"`
	TotalImpactKg     float64   `json:"totalImpactKg" firestore:"totalImpactKg"`
	IsProfileComplete bool      `json:"isProfileComplete" firestore:"isProfileComplete"`
	UpdatedAt         time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	DisplayName string `json:"displayName"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

// ApplyTo returns u with the non-empty fields of p set. The completion flag is
// recomputed from the merged profile, so a partial update never clears fields
// that were stored before.
func (p ProfileUpdate) ApplyTo(u UserAggregate) UserAggregate {
	if p.DisplayName != "" {
		u.DisplayName = p.DisplayName
	}
	if p.Phone != "" {
		u.Phone = p.Phone
	}
	if p.Address != "" {
		u.Address = p.Address
	}
	u.IsProfileComplete = u.DisplayName != "" && u.Phone != "" && u.Address != ""
	return u
}

// UserStats is the dashboard view of a user's impact. Derived values are
// computed from adoption records; Stored values are the counters on the user
// document.
type UserStats struct {
	TreesPlanted        int64   `json:"treesPlanted"`
	TotalImpactKg       float64 `json:"totalImpactKg"`
	ActiveAdoptions     int     `json:"activeAdoptions"`
	GiftedAdoptions     int     `json:"giftedAdoptions"`
	StoredTreesPlanted  int64   `json:"storedTreesPlanted"`
	StoredTotalImpactKg float64 `json:"storedTotalImpactKg"`
	Drift               bool    `json:"drift"`
	IsProfileComplete   bool    `json:"isProfileComplete"`
}

// DeriveUserStats computes stats from records and compares them with the
// stored aggregate.
func DeriveUserStats(records []AdoptionRecord, stored *UserAggregate) UserStats {
	var stats UserStats
	for _, r := range records {
		stats.TreesPlanted++
		stats.TotalImpactKg += r.ImpactKg
		if r.Status == AdoptionStatusGift {
			stats.GiftedAdoptions++
		} else {
			stats.ActiveAdoptions++
		}
	}
	if stored != nil {
		stats.StoredTreesPlanted = stored.TreesPlanted
		stats.StoredTotalImpactKg = stored.TotalImpactKg
		stats.IsProfileComplete = stored.IsProfileComplete
	}
	stats.Drift = stats.StoredTreesPlanted != stats.TreesPlanted
	return stats
}
