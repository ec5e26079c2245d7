package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Per-user data modules. Each stores one opaque JSON document.
const (
	ModuleExpenses = "expenses"
	ModuleDebts    = "debts"
	ModuleClothing = "clothing"
	ModuleScale    = "scale"
)

// Modules lists every known module name in initialization order.
func Modules() []string {
	return []string{ModuleExpenses, ModuleDebts, ModuleClothing, ModuleScale}
}

// KnownModule reports whether name is one of the supported modules.
func KnownModule(name string) bool {
	switch name {
	case ModuleExpenses, ModuleDebts, ModuleClothing, ModuleScale:
		return true
	}
	return false
}

type ModuleRecord struct {
	UserID    uuid.UUID
	Module    string
	Data      json.RawMessage
	UpdatedAt time.Time
}
