package models

import (
	"time"

	"github.com/google/uuid"
)

// StartingCredits is the balance granted to a profile created by invite redemption.
const StartingCredits = 1000

// LowCreditThreshold is the balance under which the dashboard warns the user.
const LowCreditThreshold = 100

type Profile struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	Credits        int       `json:"credits"`
	InviteCodeUsed string    `json:"invite_code_used"`
	CreatedAt      time.Time `json:"created_at"`
}
