package flow

// Screen names as declared in the published flow definitions. The platform
// rejects an invitation whose initial screen is not the first declared
// screen of the flow, so the order here must match the published JSON.
const (
	ScreenQuestionOne      = "QUESTION_ONE"
	ScreenQuestionTwo      = "QUESTION_TWO"
	ScreenPINSetup         = "PIN_SETUP_SCREEN"
	ScreenLogin            = "LOGIN_SCREEN"
	ScreenNetworkSelection = "NETWORK_SELECTION_SCREEN"
	ScreenPhoneNumber      = "PHONE_NUMBER_SCREEN"
	ScreenPlanSelection    = "PLAN_SELECTION_SCREEN"
	ScreenPIN              = "PIN_SCREEN"
	ScreenSuccess          = "SUCCESS"
)

// Definition mirrors a published flow's screen order.
type Definition struct {
	Type    Type
	Screens []string
}

// InitialScreen is the screen the platform renders first.
func (d Definition) InitialScreen() string {
	if len(d.Screens) == 0 {
		return ""
	}
	return d.Screens[0]
}

var definitions = map[Type]Definition{
	TypeOnboarding: {
		Type:    TypeOnboarding,
		Screens: []string{ScreenQuestionOne, ScreenQuestionTwo, ScreenPINSetup, ScreenSuccess},
	},
	TypeLogin: {
		Type:    TypeLogin,
		Screens: []string{ScreenLogin, ScreenSuccess},
	},
	TypeDataPurchase: {
		Type:    TypeDataPurchase,
		Screens: []string{ScreenNetworkSelection, ScreenPhoneNumber, ScreenPlanSelection, ScreenPIN, ScreenSuccess},
	},
}

// Definitions returns all published flow definitions.
func Definitions() map[Type]Definition {
	return definitions
}

// InitialScreen returns the first declared screen for a flow type.
func InitialScreen(t Type) string {
	return definitions[t].InitialScreen()
}

// previousScreen returns the screen before current, for back navigation.
// Returns the initial screen when current is unknown or already first.
func previousScreen(t Type, current string) string {
	screens := definitions[t].Screens
	for i, name := range screens {
		if name == current && i > 0 {
			return screens[i-1]
		}
	}
	return definitions[t].InitialScreen()
}
