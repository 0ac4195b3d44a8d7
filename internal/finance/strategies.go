package finance

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Strategy names, in ladder priority order.
const (
	strategyScaled     = "scaled_notation"
	strategyFullDigit  = "full_digit"
	strategyFiscalYear = "fiscal_year"
	strategyProximity  = "proximity"
)

const (
	// searchRadius bounds how far from a keyword a value may sit.
	searchRadius = 100
	// cueBack/cueAhead frame the slice scanned for qualifier language and
	// currency markers around the keyword-value pair.
	cueBack  = 40
	cueAhead = 20
	// quoteMaxLen caps the stored source quote.
	quoteMaxLen = 160
)

// occurrence is one keyword hit inside the source text.
type occurrence struct {
	keyword string
	exact   bool
	start   int
	end     int
}

// findOccurrences locates every keyword occurrence on word boundaries,
// canonical terms first.
func findOccurrences(text string, kw MetricKeywords) []occurrence {
	lower := strings.ToLower(text)
	var occs []occurrence

	add := func(term string, exact bool) {
		t := strings.ToLower(term)
		for idx := 0; ; {
			i := strings.Index(lower[idx:], t)
			if i < 0 {
				break
			}
			start := idx + i
			end := start + len(t)
			if onWordBoundary(lower, start, end) {
				occs = append(occs, occurrence{keyword: term, exact: exact, start: start, end: end})
			}
			idx = end
		}
	}

	for _, t := range kw.Canonical {
		add(t, true)
	}
	for _, t := range kw.Synonyms {
		add(t, false)
	}
	return occs
}

func onWordBoundary(s string, start, end int) bool {
	if start > 0 && isLetter(s[start-1]) {
		return false
	}
	if end < len(s) && isLetter(s[end]) {
		return false
	}
	return true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

var notDisclosedRe = regexp.MustCompile(`(?i)\b(?:not\s+(?:disclosed|stated|reported)|undisclosed)\b`)

// notDisclosed reports whether the metric is explicitly stated as
// undisclosed right after the keyword.
func notDisclosed(text string, occ occurrence) bool {
	end := min(len(text), occ.end+60)
	return notDisclosedRe.MatchString(text[occ.start:end])
}

var sentenceBreakRe = regexp.MustCompile(`[.;!?]\s|\n`)

// clampToSentence expands [start,end) by back and ahead bytes but never
// crosses a sentence boundary outside the envelope. Keeping values and
// qualifier language inside one sentence is what ties a figure to its own
// keyword rather than a neighbor's.
func clampToSentence(text string, start, end, back, ahead int) (int, int) {
	cs := max(0, start-back)
	if locs := sentenceBreakRe.FindAllStringIndex(text[cs:start], -1); len(locs) > 0 {
		cs += locs[len(locs)-1][1]
	}
	ce := min(len(text), end+ahead)
	if loc := sentenceBreakRe.FindStringIndex(text[end:ce]); loc != nil {
		ce = end + loc[0] + 1
	}
	return cs, ce
}

// span bounds the value-search window around a keyword occurrence.
func span(text string, occ occurrence) (int, int) {
	return clampToSentence(text, occ.start, occ.end, searchRadius, searchRadius)
}

var (
	scaledValueRe = regexp.MustCompile(`(?i)([0-9][\d,]*(?:\.\d+)?)\s*(billion|million|thousand|bn|mn|[bmk])\b`)
	fullDigitRe   = regexp.MustCompile(`\b\d{1,3}(?:,\d{3}){2,}\b|\b\d{7,}\b`)
	fiscalYearRe  = regexp.MustCompile(`(?i)\b(?:fiscal(?:\s+year)?|FY)\s*[- ]?(20\d{2})\b`)
	plainNumberRe = regexp.MustCompile(`\b[0-9][\d,]*(?:\.\d+)?\b`)
	yearLikeRe    = regexp.MustCompile(`^(?:19|20)\d{2}$`)
	contextYearRe = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

var scaleFactors = map[string]float64{
	"thousand": 1e3, "k": 1e3,
	"million": 1e6, "m": 1e6, "mn": 1e6,
	"billion": 1e9, "b": 1e9, "bn": 1e9,
}

// matchScaled finds decimal values qualified by a scale word, the most
// reliable written form ("$2.61 billion", "450.3m").
func (n *Normalizer) matchScaled(text string, occ occurrence) []financialMatch {
	start, end := span(text, occ)
	window := text[start:end]

	var out []financialMatch
	for _, loc := range scaledValueRe.FindAllStringSubmatchIndex(window, -1) {
		numStr := window[loc[2]:loc[3]]
		unit := strings.ToLower(window[loc[4]:loc[5]])
		v, err := parseNumber(numStr)
		if err != nil {
			continue
		}
		v *= scaleFactors[unit]
		out = append(out, n.newMatch(text, occ, start+loc[0], start+loc[1], v, strategyScaled))
	}
	return out
}

// matchFullDigit finds fully written-out large literals: seven or more
// digits, or comma-grouped numbers of at least a million.
func (n *Normalizer) matchFullDigit(text string, occ occurrence) []financialMatch {
	start, end := span(text, occ)
	window := text[start:end]

	var out []financialMatch
	for _, loc := range fullDigitRe.FindAllStringIndex(window, -1) {
		v, err := parseNumber(window[loc[0]:loc[1]])
		if err != nil {
			continue
		}
		out = append(out, n.newMatch(text, occ, start+loc[0], start+loc[1], v, strategyFullDigit))
	}
	return out
}

// fiscalRadius is the wider, sentence-crossing reach of the fiscal-year
// strategy: an explicit fiscal qualifier vouches for a figure even when it
// sits in a different sentence than the metric keyword.
const fiscalRadius = 250

// matchFiscalYear anchors a value to an explicit fiscal-year qualifier,
// which disambiguates current-year figures from prior-year comparatives.
func (n *Normalizer) matchFiscalYear(text string, occ occurrence) []financialMatch {
	start := max(0, occ.start-fiscalRadius)
	end := min(len(text), occ.end+fiscalRadius)
	window := text[start:end]

	var out []financialMatch
	for _, qloc := range fiscalYearRe.FindAllStringSubmatchIndex(window, -1) {
		year, err := strconv.Atoi(window[qloc[2]:qloc[3]])
		if err != nil {
			continue
		}

		// The value must adjoin the qualifier itself.
		subStart := max(0, qloc[0]-30)
		subEnd := min(len(window), qloc[1]+100)
		sub := window[subStart:subEnd]

		if loc := scaledValueRe.FindStringSubmatchIndex(sub); loc != nil {
			v, err := parseNumber(sub[loc[2]:loc[3]])
			if err == nil {
				v *= scaleFactors[strings.ToLower(sub[loc[4]:loc[5]])]
				m := n.newMatch(text, occ, start+subStart+loc[0], start+subStart+loc[1], v, strategyFiscalYear)
				m.year = year
				out = append(out, m)
			}
			continue
		}
		if loc := fullDigitRe.FindStringIndex(sub); loc != nil {
			v, err := parseNumber(sub[loc[0]:loc[1]])
			if err == nil {
				m := n.newMatch(text, occ, start+subStart+loc[0], start+subStart+loc[1], v, strategyFiscalYear)
				m.year = year
				out = append(out, m)
			}
		}
	}
	return out
}

// matchProximity takes any number near the keyword. Lowest confidence;
// year-shaped literals are skipped so "in 2023" never reads as a value.
func (n *Normalizer) matchProximity(text string, occ occurrence) []financialMatch {
	start, end := span(text, occ)
	window := text[start:end]

	var out []financialMatch
	for _, loc := range plainNumberRe.FindAllStringIndex(window, -1) {
		numStr := window[loc[0]:loc[1]]
		if yearLikeRe.MatchString(numStr) {
			continue
		}
		v, err := parseNumber(numStr)
		if err != nil {
			continue
		}
		out = append(out, n.newMatch(text, occ, start+loc[0], start+loc[1], v, strategyProximity))
	}
	return out
}

// newMatch assembles a candidate with its quote, cue slice, context window,
// resolved currency, and any year mentioned nearby. Context and cue expand
// around the keyword-value envelope but stop at sentence breaks beyond it,
// so qualifier language from a neighboring sentence never bleeds in.
func (n *Normalizer) newMatch(text string, occ occurrence, valStart, valEnd int, value float64, strategy string) financialMatch {
	es := min(occ.start, valStart)
	ee := max(occ.end, valEnd)

	ctxStart, ctxEnd := clampToSentence(text, es, ee, searchRadius, searchRadius)
	context := text[ctxStart:ctxEnd]

	qs, qe := es, ee
	if qe-qs > quoteMaxLen {
		// Keep the value in frame when keyword and value sit far apart.
		qs = max(qs, valStart-60)
		qe = min(qe, qs+quoteMaxLen)
	}
	quote := strings.TrimSpace(text[qs:qe])

	cs, ce := clampToSentence(text, es, ee, cueBack, cueAhead)
	cue := text[cs:ce]

	forward := valStart >= occ.end
	gap := 0
	switch {
	case valStart >= occ.end:
		gap = valStart - occ.end
	case valEnd <= occ.start:
		gap = occ.start - valEnd
	}

	return financialMatch{
		value:    value,
		currency: n.resolveCurrency(cue, context),
		context:  context,
		cueText:  cue,
		quote:    quote,
		keyword:  occ.keyword,
		exact:    occ.exact,
		year:     contextYear(context),
		strategy: strategy,
		forward:  forward,
		gap:      gap,
	}
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

// contextYear returns the most recent plausible year mentioned in s.
func contextYear(s string) int {
	best := 0
	ceiling := time.Now().Year() + 1
	for _, m := range contextYearRe.FindAllString(s, -1) {
		y, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if y >= 1990 && y <= ceiling && y > best {
			best = y
		}
	}
	return best
}
