package ots

import "strings"

// LinkGenerator renders shareable URLs for a token under a configured base.
type LinkGenerator struct {
	base string
}

func NewLinkGenerator(baseURL string) *LinkGenerator {
	return &LinkGenerator{base: strings.TrimRight(baseURL, "/")}
}

// DownloadURL is the link handed to the recipient.
func (l *LinkGenerator) DownloadURL(token string) string {
	return l.base + "/d/" + token
}

// InfoURL points at the status view for a token.
func (l *LinkGenerator) InfoURL(token string) string {
	return l.base + "/info/" + token
}
