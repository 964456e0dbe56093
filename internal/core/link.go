package core

import (
	"net/url"
	"strings"
)

// DefaultLinkTemplate renders the profile link stored alongside each record.
const DefaultLinkTemplate = "https://instagram.com/{identity}"

const identityPlaceholder = "{identity}"

// RenderLink substitutes the path-escaped identity into template.
func RenderLink(template string, identity Identity) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultLinkTemplate
	}
	return strings.ReplaceAll(template, identityPlaceholder, url.PathEscape(string(identity)))
}

// NewLiveRecord builds the payload for one transition.
func NewLiveRecord(identity Identity, active bool, linkTemplate string) LiveRecord {
	return LiveRecord{
		Identity: identity,
		IsActive: active,
		Link:     RenderLink(linkTemplate, identity),
	}
}
