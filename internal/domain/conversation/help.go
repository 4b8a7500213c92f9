package conversation

import (
	"context"

	"github.com/owopay/owo-api/internal/domain/user"
	"github.com/owopay/owo-api/internal/pkg/whatsapp"
)

// Menu row ids, routed directly by the dispatcher without classification.
const (
	menuBalance  = "menu_balance"
	menuTransfer = "menu_transfer"
	menuAirtime  = "menu_airtime"
	menuData     = "menu_data"
	menuBills    = "menu_bills"
	menuAccount  = "menu_account"
)

var menuIntents = map[string]IntentKind{
	menuBalance:  IntentBalance,
	menuTransfer: IntentTransfer,
	menuAirtime:  IntentAirtime,
	menuData:     IntentData,
	menuBills:    IntentBills,
	menuAccount:  IntentAccountDetails,
}

// handleHelp sends the main menu.
func (e *Engine) handleHelp(ctx context.Context, u *user.User) {
	e.emitter.List(ctx, u.ID, u.Phone,
		"Here's what I can do. Pick one, or just type what you want.",
		"Menu",
		[]whatsapp.ListSection{
			{
				Title: "Money",
				Rows: []whatsapp.ListRow{
					{ID: menuBalance, Title: "Check balance"},
					{ID: menuTransfer, Title: "Send money", Description: "To any Nigerian bank"},
					{ID: menuAccount, Title: "My account details", Description: "For receiving money"},
				},
			},
			{
				Title: "Purchases",
				Rows: []whatsapp.ListRow{
					{ID: menuAirtime, Title: "Buy airtime"},
					{ID: menuData, Title: "Buy data"},
					{ID: menuBills, Title: "Pay electricity"},
				},
			},
		})
}

// handleGreeting welcomes back an onboarded user.
func (e *Engine) handleGreeting(ctx context.Context, u *user.User) {
	name := firstName(u.DisplayName)
	greeting := "Welcome back"
	if name != "" {
		greeting += ", " + name
	}
	e.emitter.Text(ctx, u.ID, u.Phone, greeting+"! 👋 What would you like to do? Type *help* for the menu.")
}

func firstName(displayName string) string {
	for i := 0; i < len(displayName); i++ {
		if displayName[i] == ' ' {
			return displayName[:i]
		}
	}
	return displayName
}
