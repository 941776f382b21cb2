package router

// Guard returns the view that should actually be shown to an identity
// asking for v, and whether that is a forced change.
func Guard(anonymous bool, v View) (View, bool) {
	if anonymous {
		switch v {
		case Practice, Feedback, ScenarioSelection:
			return Login, true
		case Calendar, CoachingSummary, CancelSubscription:
			return Dashboard, true
		}
		return v, false
	}
	switch v {
	case Login, ForgotPassword, EmailConfirmation:
		return Dashboard, true
	}
	return v, false
}

// PromptsSignUp reports views that render a sign-up prompt for anonymous
// identities instead of their normal content.
func PromptsSignUp(anonymous bool, v View) bool {
	return anonymous && (v == Paywall || v == Settings)
}
