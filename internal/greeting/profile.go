package greeting

import "strings"

// Profile holds the spoken tables the manager draws from.
type Profile struct {
	// School is used in the formal greeting.
	School string
	// SpokenSchool is the same name spelled for the synthesizer; the
	// unknown greeting uses it so acronyms are read letter by letter.
	SpokenSchool string
	// Nicknames maps a label to the short name used on casual greetings.
	Nicknames map[string]string
	// SpecialIntros maps a label to a fixed formal greeting.
	SpecialIntros map[string]string
	// Casual templates; "{name}" is replaced with the short name.
	Casual []string
}

// DefaultProfile returns the tables the kiosk ships with.
func DefaultProfile() Profile {
	return Profile{
		School:       "MGM Model School",
		SpokenSchool: "M G M Model School",
		Nicknames: map[string]string{
			"Vaishnavi":   "vaaish",
			"Pooja":       "Mam",
			"Sukumaran":   "sir",
			"Deva Nandan": "Deva",
			"Rakesh N K":  "Rakesh Sir",
		},
		SpecialIntros: map[string]string{
			"Rakesh N K":      "Hello Rakesh Sir! It is an honor to welcome a Reporter from Maliyaala Manorama to our school.",
			"S Prateesh":      "Welcome Prateesh Sir. Great to have a reporter from Mathrubhumi Daily here.",
			"Ansar Varnana":   "Hello Ansar Sir. Welcome. We are glad to see a reporter from Madhyamam.",
			"Abhilash D":      "Welcome Abhilash Sir from Kala Kaumudi. Nice to meet you.",
			"Saju P M":        "Hello Saju Sir. Welcome to our school. We appreciate the visit from Janmabhumi Daily.",
			"Honey":           "Hello Honey Sir. Welcome. It is great to have Asianet News represented here.",
			"Ansari A":        "Welcome Ansari Sir. We are honored to have a reporter from Chandrika here.",
			"Babu Rajeev P R": "Hello Babu Rajeev Sir. Welcome to our school. Great to have Mathrubhumi News here.",
			"Saji Nair":       "Welcome Saji Sir. We are pleased to have Kerala Kaumudi Daily's Varkala correspondent visiting us.",
		},
		Casual: []string{
			"Hi again {name}!",
			"Welcome back {name}.",
			"Good to see you {name}.",
			"How is it going {name}?",
			"Hello there {name}!",
		},
	}
}

// merge fills empty fields of p from def.
func (p Profile) merge(def Profile) Profile {
	if p.School == "" {
		p.School = def.School
	}
	if p.SpokenSchool == "" {
		p.SpokenSchool = p.School
		if p.School == def.School {
			p.SpokenSchool = def.SpokenSchool
		}
	}
	if p.Nicknames == nil {
		p.Nicknames = def.Nicknames
	}
	if p.SpecialIntros == nil {
		p.SpecialIntros = def.SpecialIntros
	}
	if len(p.Casual) == 0 {
		p.Casual = def.Casual
	}
	return p
}

// ShortName resolves the name used on casual greetings: the nickname if
// one is set, else the first word of a multi-word label, else the label.
func (p Profile) ShortName(label string) string {
	if nick, ok := p.Nicknames[label]; ok && nick != "" {
		return nick
	}
	if fields := strings.Fields(label); len(fields) > 1 {
		return fields[0]
	}
	return label
}
