// Package router maps views to paths, keeps a navigation history and
// applies the identity guard before a view is shown.
package router

type View string

const (
	Login              View = "login"
	ForgotPassword     View = "forgotPassword"
	ResetPassword      View = "resetPassword"
	EmailConfirmation  View = "emailConfirmation"
	Dashboard          View = "dashboard"
	Practice           View = "practice"
	Feedback           View = "feedback"
	History            View = "history"
	ResourceLibrary    View = "resourceLibrary"
	Paywall            View = "paywall"
	Settings           View = "settings"
	ScenarioSelection  View = "scenarioSelection"
	Calendar           View = "calendar"
	CoachingSummary    View = "coachingSummary"
	Reports            View = "reports"
	PrivacyPolicy      View = "privacyPolicy"
	TermsOfService     View = "termsOfService"
	SubscriptionTerms  View = "subscriptionTerms"
	CookiePolicy       View = "cookiePolicy"
	Disclaimer         View = "disclaimer"
	Support            View = "support"
	CancelSubscription View = "cancelSubscription"
)

var viewPaths = map[View]string{
	Login:              "/login",
	ForgotPassword:     "/forgot-password",
	ResetPassword:      "/reset-password",
	EmailConfirmation:  "/confirm-email",
	Dashboard:          "/",
	Practice:           "/practice",
	Feedback:           "/feedback",
	History:            "/history",
	ResourceLibrary:    "/resources",
	Paywall:            "/upgrade",
	Settings:           "/settings",
	ScenarioSelection:  "/scenarios",
	Calendar:           "/calendar",
	CoachingSummary:    "/coaching-summary",
	Reports:            "/reports",
	PrivacyPolicy:      "/privacy",
	TermsOfService:     "/terms",
	SubscriptionTerms:  "/subscription-terms",
	CookiePolicy:       "/cookies",
	Disclaimer:         "/disclaimer",
	Support:            "/support",
	CancelSubscription: "/cancel-subscription",
}

var pathViews = func() map[string]View {
	m := make(map[string]View, len(viewPaths))
	for v, p := range viewPaths {
		m[p] = v
	}
	return m
}()

// PathFor returns the canonical path of v, or "/" for an unknown view.
func PathFor(v View) string {
	if p, ok := viewPaths[v]; ok {
		return p
	}
	return "/"
}

// ViewForPath resolves a path; unknown paths land on the Dashboard.
func ViewForPath(path string) View {
	if path == "" {
		return Dashboard
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	if v, ok := pathViews[path]; ok {
		return v
	}
	return Dashboard
}

// ParseView accepts either a view name or a path.
func ParseView(s string) (View, bool) {
	if _, ok := viewPaths[View(s)]; ok {
		return View(s), true
	}
	if v, ok := pathViews[s]; ok {
		return v, true
	}
	return "", false
}

// Views lists every known view.
func Views() []View {
	out := make([]View, 0, len(viewPaths))
	for v := range viewPaths {
		out = append(out, v)
	}
	return out
}
