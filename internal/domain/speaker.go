package domain

// Speaker represents a speaker at a conference.
type Speaker struct {
	ID       string       `json:"id" yaml:"id"`
	Name     string       `json:"name" yaml:"name"`
	Company  *string      `json:"company,omitempty" yaml:"company,omitempty"`
	City     *string      `json:"city,omitempty" yaml:"city,omitempty"`
	Bio      *string      `json:"bio,omitempty" yaml:"bio,omitempty"`
	PhotoURL *string      `json:"photoUrl,omitempty" yaml:"photo_url,omitempty"`
	Socials  []SocialLink `json:"socials" yaml:"socials"`
}

// SocialLink is one platform/URL pair on a speaker profile. The server names the
// URL field link.
type SocialLink struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"link" yaml:"link"`
}
