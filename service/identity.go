package service

import (
	"strings"

	"github.com/ikonrealty/closingdesk/model"
)

const minPasswordLength = 12

// DisplayNameOf is "Given Family", else the email local part, else "Agent"
func DisplayNameOf(id model.Identity) string {
	given, family := strings.TrimSpace(id.GivenName), strings.TrimSpace(id.FamilyName)
	if given != "" && family != "" {
		return given + " " + family
	}
	if local := emailLocal(id.Email); local != "" {
		return local
	}
	return "Agent"
}

// AgentFolder is the storage folder for an agent's uploads: "Given-Family"
// with whitespace turned into dashes, else the email local part.
func AgentFolder(id model.Identity) string {
	given, family := strings.TrimSpace(id.GivenName), strings.TrimSpace(id.FamilyName)
	if given != "" && family != "" {
		return strings.Join(strings.Fields(given+"-"+family), "-")
	}
	return emailLocal(id.Email)
}

func emailLocal(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

// NormalizePhone returns +1XXXXXXXXXX for a ten digit US number, optionally
// prefixed with 1, or "" when it is not one.
func NormalizePhone(raw string) string {
	d := nonDigits.ReplaceAllString(raw, "")
	if len(d) == 11 && strings.HasPrefix(d, "1") {
		d = d[1:]
	}
	if len(d) != 10 {
		return ""
	}
	return "+1" + d
}

// PasswordStrength scores 0-4: length, upper case, digit, symbol
func PasswordStrength(pw string) int {
	score := 0
	if len(pw) >= minPasswordLength {
		score++
	}
	var upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case r < 'a' || r > 'z':
			symbol = true
		}
	}
	for _, ok := range []bool{upper, digit, symbol} {
		if ok {
			score++
		}
	}
	return score
}

// Roster is who may create an account
type Roster struct {
	emails map[string]struct{}
	phones map[string]struct{}
}

func NewRoster(emails, phones []string) *Roster {
	r := &Roster{emails: make(map[string]struct{}), phones: make(map[string]struct{})}
	for _, e := range emails {
		r.emails[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	for _, p := range phones {
		if n := NormalizePhone(p); n != "" {
			r.phones[n] = struct{}{}
		}
	}
	return r
}

func (r *Roster) HasEmail(email string) bool {
	_, ok := r.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

func (r *Roster) HasPhone(phone string) bool {
	_, ok := r.phones[phone]
	return ok
}

// SignUpForm is an account request
type SignUpForm struct {
	GivenName       string `json:"given_name"`
	FamilyName      string `json:"family_name"`
	Phone           string `json:"phone_number"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// SignUp is a validated account request ready to submit
type SignUp struct {
	Identity model.Identity `json:"identity"`
	Phone    string         `json:"phone_number"`
	Password string         `json:"-"`
	Strength int            `json:"strength"`
}

// FieldErrors maps a form field to its message
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, f := range []string{"given_name", "family_name", "phone_number", "email", "password", "confirm_password"} {
		if msg, ok := e[f]; ok {
			parts = append(parts, f+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

// Validate checks the form against roster and returns the payload to submit
func (f SignUpForm) Validate(roster *Roster) (*SignUp, error) {
	errs := FieldErrors{}
	given, family := strings.TrimSpace(f.GivenName), strings.TrimSpace(f.FamilyName)
	if given == "" {
		errs["given_name"] = "First name required"
	}
	if family == "" {
		errs["family_name"] = "Last name required"
	}

	phone := NormalizePhone(f.Phone)
	switch {
	case phone == "":
		errs["phone_number"] = "Enter valid US/CA phone"
	case roster != nil && !roster.HasPhone(phone):
		errs["phone_number"] = "Phone not in roster"
	}

	email := strings.ToLower(strings.TrimSpace(f.Email))
	switch {
	case !strings.Contains(email, "@"):
		errs["email"] = "Valid email required"
	case roster != nil && !roster.HasEmail(email):
		errs["email"] = "Email not in roster"
	}

	switch {
	case f.Password == "":
		errs["password"] = "Password required"
	case len(f.Password) < minPasswordLength:
		errs["password"] = "Minimum 12 characters"
	}
	if f.Password != f.ConfirmPassword {
		errs["confirm_password"] = "Passwords must match"
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &SignUp{
		Identity: model.Identity{GivenName: given, FamilyName: family, Email: email},
		Phone:    phone,
		Password: f.Password,
		Strength: PasswordStrength(f.Password),
	}, nil
}
