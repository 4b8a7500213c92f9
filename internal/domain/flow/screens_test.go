package flow

import "testing"

// The platform refuses an invitation whose initial_screen is not the first
// declared screen of the published flow, so the table must stay consistent.
func TestInitialScreenContract(t *testing.T) {
	for flowType, def := range Definitions() {
		if len(def.Screens) == 0 {
			t.Errorf("%s: no screens declared", flowType)
			continue
		}
		if got := InitialScreen(flowType); got != def.Screens[0] {
			t.Errorf("%s: InitialScreen() = %q, want first declared screen %q", flowType, got, def.Screens[0])
		}
		if def.Screens[len(def.Screens)-1] != ScreenSuccess {
			t.Errorf("%s: last screen = %q, want terminal %q", flowType, def.Screens[len(def.Screens)-1], ScreenSuccess)
		}
	}
}

func TestKnownInitialScreens(t *testing.T) {
	if got := InitialScreen(TypeOnboarding); got != "QUESTION_ONE" {
		t.Errorf("onboarding initial screen = %q", got)
	}
	if got := InitialScreen(TypeDataPurchase); got != "NETWORK_SELECTION_SCREEN" {
		t.Errorf("data purchase initial screen = %q", got)
	}
}

func TestPreviousScreen(t *testing.T) {
	if got := previousScreen(TypeDataPurchase, ScreenPlanSelection); got != ScreenPhoneNumber {
		t.Errorf("back from plan selection = %q, want %q", got, ScreenPhoneNumber)
	}
	// First screen and unknown screens both land on the initial screen.
	if got := previousScreen(TypeDataPurchase, ScreenNetworkSelection); got != ScreenNetworkSelection {
		t.Errorf("back from first screen = %q, want %q", got, ScreenNetworkSelection)
	}
	if got := previousScreen(TypeOnboarding, "NOPE"); got != ScreenQuestionOne {
		t.Errorf("back from unknown screen = %q, want %q", got, ScreenQuestionOne)
	}
}
