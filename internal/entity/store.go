package entity

type Store struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	FounderID  int    `json:"founder_id"`
	OwnerIDs   []int  `json:"owner_ids"`
	ManagerIDs []int  `json:"manager_ids"`
}

// Staff returns everyone who runs the store: founder, owners and managers.
// Used for auction notifications and the self-bid check.
func (s *Store) Staff() []int {
	staff := make([]int, 0, 1+len(s.OwnerIDs)+len(s.ManagerIDs))
	staff = append(staff, s.FounderID)
	staff = append(staff, s.OwnerIDs...)
	staff = append(staff, s.ManagerIDs...)
	return staff
}

// IsStaff reports whether the user runs the store.
func (s *Store) IsStaff(userID int) bool {
	for _, id := range s.Staff() {
		if id == userID {
			return true
		}
	}
	return false
}
