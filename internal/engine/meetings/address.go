package meetings

import (
	"regexp"
	"strings"
)

// shortAddressRe matches compact street addresses in video descriptions,
// e.g. "123 W Main St" or "45 Old Town Pkwy".
var shortAddressRe = regexp.MustCompile(`\b\d{1,5}\s(?:[NSEW]\s)?(?:\w+\s){1,3}(?:St|Ave|Blvd|Rd|Dr|Ln|Ct|Pl|Way|Terr|Pkwy|Cir)\b`)

// agendaAddressRe is looser: agendas often spell out suffixes and append city/state.
var agendaAddressRe = regexp.MustCompile(`\d{1,5}\s(?:\d{1,5}\s)?(?:[NSEW]?\s)?[A-Za-z0-9]+(?:\s[A-Za-z0-9]+)*(?:St|Street|Ave|Avenue|Blvd|Road|Rd|Ln|Drive|Dr|Ct|Court|Way|N|S|E|W|NW|NE|SW|SE|Trail)?(?:,\s?[A-Za-z]+(?:,\s?[A-Za-z]{2})?)?`)

// businessRe splits agenda text into the sections that carry petitions and cases.
var businessRe = regexp.MustCompile(`(?i)new business|old business`)

// ExtractAddresses returns every street address in a video description,
// in order of appearance. Duplicates are kept, matching how often a site is cited.
func ExtractAddresses(description string) []string {
	return shortAddressRe.FindAllString(description, -1)
}

// ExtractAgendaAddresses returns the distinct addresses that appear after a
// "New Business" or "Old Business" heading on an agenda page. Text before the
// first heading (call to order, minutes approval) is ignored. Matching is done
// line by line so an address never spans two agenda items.
func ExtractAgendaAddresses(pageText string) []string {
	sections := businessRe.Split(pageText, -1)
	if len(sections) < 2 {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, section := range sections[1:] {
		for _, line := range strings.Split(section, "\n") {
			for _, m := range agendaAddressRe.FindAllString(line, -1) {
				m = strings.TrimRight(strings.TrimSpace(m), ",")
				if m == "" || seen[m] {
					continue
				}
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// QualifyAddress appends the default city and state to addresses that carry no
// locality, so "123 W Main St" geocodes inside the town rather than anywhere.
func QualifyAddress(address, city, state string) string {
	address = strings.TrimSpace(address)
	if strings.Contains(address, ",") || city == "" {
		return address
	}
	if state == "" {
		return address + ", " + city
	}
	return address + ", " + city + ", " + state
}
