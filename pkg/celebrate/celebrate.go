// Package celebrate decides which cheerful banners the diary page shows:
// a birthday greeting on the owner's birthday and a seasonal message every
// tenth entry.
package celebrate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Season of the northern-hemisphere calendar
type Season string

const (
	Spring Season = "spring"
	Summer Season = "summer"
	Autumn Season = "autumn"
	Winter Season = "winter"
)

// Effect is a page animation hint
type Effect string

const (
	EffectNone     Effect = ""
	EffectBalloons Effect = "balloons"
	EffectSnow     Effect = "snow"
)

// Milestone is the entry-count interval that triggers a season banner
const Milestone = 10

// Banner is one message shown above the recent entries
type Banner struct {
	Kind     string
	Message  string
	ImageURL string
	Effect   Effect
}

// SeasonOf maps a month onto its season: Mar-May, Jun-Aug, Sep-Nov, rest winter
func SeasonOf(m time.Month) Season {
	switch m {
	case time.March, time.April, time.May:
		return Spring
	case time.June, time.July, time.August:
		return Summer
	case time.September, time.October, time.November:
		return Autumn
	default:
		return Winter
	}
}

// Birthday is a month and day, year-agnostic
type Birthday struct {
	Month time.Month
	Day   int
}

// ParseBirthday reads "MM-DD". An empty string means no birthday.
func ParseBirthday(s string) (*Birthday, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("birthday %q: want MM-DD", s)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return nil, fmt.Errorf("birthday %q: bad month", s)
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil || day < 1 || day > daysIn(time.Month(month)) {
		return nil, fmt.Errorf("birthday %q: bad day", s)
	}
	return &Birthday{Month: time.Month(month), Day: day}, nil
}

// Matches reports whether t falls on the birthday
func (b *Birthday) Matches(t time.Time) bool {
	return b != nil && t.Month() == b.Month && t.Day() == b.Day
}

// Greeting is the encouragement line under the page title
func Greeting(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "💖 Be happy today too!!!"
	}
	return fmt.Sprintf("💖 Dear %s, be happy today too!!!", owner)
}

// Banners returns the messages for today given the number of saved entries
func Banners(today time.Time, count int, birthday *Birthday, owner string) []Banner {
	var banners []Banner

	if birthday.Matches(today) {
		name := strings.TrimSpace(owner)
		if name == "" {
			name = "friend"
		}
		banners = append(banners, Banner{
			Kind:    "birthday",
			Message: fmt.Sprintf("🎂 Happy birthday, dear %s! May you always be happy and always shine! 🎉", name),
			Effect:  EffectBalloons,
		})
	}

	if count > 0 && count%Milestone == 0 {
		banners = append(banners, seasonBanner(SeasonOf(today.Month()), count))
	}
	return banners
}

func seasonBanner(season Season, count int) Banner {
	b := Banner{Kind: "season"}
	switch season {
	case Spring:
		b.Message = fmt.Sprintf("🌸 Spring is here and the blossoms are falling. Celebrating your entry #%d!", count)
		b.Effect = EffectBalloons
	case Summer:
		b.Message = fmt.Sprintf("🍦 A summer ice cream for entry #%d! Cool and sweet~", count)
		b.ImageURL = "https://i.imgur.com/O3ZCqQk.png"
	case Autumn:
		b.Message = fmt.Sprintf("🍎 Autumn is here with a rich harvest! This is entry #%d, wonderful!", count)
		b.ImageURL = "https://i.imgur.com/Ue3mL6P.png"
	default:
		b.Message = fmt.Sprintf("❄️ Winter snowflakes fall for you, celebrating entry #%d~", count)
		b.Effect = EffectSnow
	}
	return b
}

func daysIn(m time.Month) int {
	// Leap year so 02-29 is a valid birthday.
	return time.Date(2024, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
