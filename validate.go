package otpgate

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/otpgate/password"
)

const (
	maxEmailBytes    = 254
	minNameRunes     = 3
	maxNameRunes     = 100
	maxHeadlineRunes = 120
	maxBioRunes      = 2000
	maxLocationRunes = 120
	maxSkills        = 50
	maxSkillRunes    = 50
)

// NormalizeEmail trims and lowercases raw and checks it is a bare address
// ("a@x.io", not "Alice <a@x.io>").
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalid("email", "required")
	}
	if len(email) > maxEmailBytes {
		return "", invalid("email", "too long")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", invalid("email", "malformed address")
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return "", invalid("email", "malformed address")
	}
	return email, nil
}

func normalizeProfile(p Profile) (Profile, error) {
	out := Profile{
		Headline: strings.TrimSpace(p.Headline),
		Bio:      strings.TrimSpace(p.Bio),
		Location: strings.TrimSpace(p.Location),
	}
	if utf8.RuneCountInString(out.Headline) > maxHeadlineRunes {
		return Profile{}, invalid("headline", "must be at most 120 characters")
	}
	if utf8.RuneCountInString(out.Bio) > maxBioRunes {
		return Profile{}, invalid("bio", "too long")
	}
	if utf8.RuneCountInString(out.Location) > maxLocationRunes {
		return Profile{}, invalid("location", "too long")
	}

	if len(p.Skills) > maxSkills {
		return Profile{}, invalid("skills", "too many entries")
	}
	seen := make(map[string]struct{}, len(p.Skills))
	for _, s := range p.Skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if utf8.RuneCountInString(s) > maxSkillRunes {
			return Profile{}, invalid("skills", "entry too long")
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out.Skills = append(out.Skills, s)
	}
	return out, nil
}

// normalizeRegistration returns a cleaned copy of req. Password is checked
// for length only and is never trimmed.
func (e *Engine) normalizeRegistration(req RegistrationRequest) (RegistrationRequest, error) {
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return RegistrationRequest{}, err
	}

	name := strings.TrimSpace(req.Name)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		return RegistrationRequest{}, invalid("name", "required")
	case n < minNameRunes:
		return RegistrationRequest{}, invalid("name", "must be at least 3 characters")
	case n > maxNameRunes:
		return RegistrationRequest{}, invalid("name", "too long")
	}

	if err := e.passwordHash.CheckLength(req.Password); err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort):
			return RegistrationRequest{}, invalid("password", "must be at least 6 characters")
		default:
			return RegistrationRequest{}, invalid("password", "too long")
		}
	}

	profile, err := normalizeProfile(req.Profile)
	if err != nil {
		return RegistrationRequest{}, err
	}

	return RegistrationRequest{
		Email:    email,
		Name:     name,
		Password: req.Password,
		Profile:  profile,
	}, nil
}

// normalizeCode strips surrounding whitespace and reports whether the result
// is exactly digits long and all ASCII digits.
func normalizeCode(code string, digits int) (string, bool) {
	code = strings.TrimSpace(code)
	if len(code) != digits {
		return "", false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return "", false
		}
	}
	return code, true
}
