package router

import (
	"net/url"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

// CheckoutReturn is the query the payment provider appends to the
// success URL.
type CheckoutReturn struct {
	SessionID string
	Plan      models.Plan
}

// ParseCheckoutReturn detects ?session_id=...&plan=... on u.
func ParseCheckoutReturn(u *url.URL) (CheckoutReturn, bool) {
	q := u.Query()
	id := q.Get("session_id")
	if id == "" {
		return CheckoutReturn{}, false
	}
	plan, err := models.ParsePlan(q.Get("plan"))
	if err != nil {
		plan = models.PlanUnknown
	}
	return CheckoutReturn{SessionID: id, Plan: plan}, true
}

// AuthCallback is the fragment left by an email confirmation or
// password recovery link.
type AuthCallback struct {
	AccessToken string
	Type        string
}

func ParseAuthCallback(u *url.URL) (AuthCallback, bool) {
	frag, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return AuthCallback{}, false
	}
	token := frag.Get("access_token")
	if token == "" {
		return AuthCallback{}, false
	}
	return AuthCallback{AccessToken: token, Type: frag.Get("type")}, true
}

// View returns where the callback should land.
func (a AuthCallback) View() View {
	switch a.Type {
	case "recovery":
		return ResetPassword
	case "signup", "email":
		return EmailConfirmation
	}
	return Dashboard
}

// StripCallbackParams removes checkout and auth callback parameters.
func StripCallbackParams(u *url.URL) *url.URL {
	out := *u
	q := out.Query()
	q.Del("session_id")
	q.Del("plan")
	out.RawQuery = q.Encode()
	out.Fragment = ""
	out.RawFragment = ""
	return &out
}
