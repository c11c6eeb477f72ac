package botledger

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message roles recorded in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Account is the durable entitlement record of one user.
type Account struct {
	Tier    string               `json:"tier"`
	Limits  map[string]int64     `json:"limits"`
	History map[string][]Message `json:"history,omitempty"`
}

// Clone returns a deep copy of the account.
func (a Account) Clone() Account {
	out := Account{Tier: a.Tier}
	if a.Limits != nil {
		out.Limits = make(map[string]int64, len(a.Limits))
		for k, v := range a.Limits {
			out.Limits[k] = v
		}
	}
	if a.History != nil {
		out.History = make(map[string][]Message, len(a.History))
		for k, msgs := range a.History {
			out.History[k] = append([]Message(nil), msgs...)
		}
	}
	return out
}

// PromoCode is a single-use token granting a tier.
type PromoCode struct {
	Tier   string `json:"tier"`
	Used   bool   `json:"used"`
	UsedBy UserID `json:"used_by,omitempty"`
}

// UserID is a user identifier as persisted in promo records.
// It decodes from a JSON string or a JSON number.
type UserID string

func (u *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("botledger: used_by: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

// Snapshot is the complete persisted state.
type Snapshot struct {
	Users      map[string]Account   `json:"users"`
	Promocodes map[string]PromoCode `json:"promocodes"`
}

// NewSnapshot returns an empty snapshot with initialized maps.
func NewSnapshot() Snapshot {
	return Snapshot{
		Users:      make(map[string]Account),
		Promocodes: make(map[string]PromoCode),
	}
}

// Reservation is a unit of quota taken by Reserve and not yet committed.
type Reservation struct {
	ID        string
	UserID    string
	Model     string
	Remaining int64 // quota left after this reservation
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := NewSnapshot()
	for id, acc := range s.Users {
		out.Users[id] = acc.Clone()
	}
	for code, p := range s.Promocodes {
		out.Promocodes[code] = p
	}
	return out
}
