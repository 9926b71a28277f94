package dictionary

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
)

// The upstream payload nests entries as
// searchResultMap.searchResultListMap.WORD.items; other sections (OPEN,
// VLIVE, ...) hold user-contributed content and are ignored.
type apiResponse struct {
	SearchResultMap struct {
		SearchResultListMap map[string]apiSection `json:"searchResultListMap"`
	} `json:"searchResultMap"`
}

type apiSection struct {
	Items []apiItem `json:"items"`
}

type apiItem struct {
	ExpEntry                 string              `json:"expEntry"`
	SearchPhoneticSymbolList []apiPhoneticSymbol `json:"searchPhoneticSymbolList"`
	MeansCollector           []apiMeansCollector `json:"meansCollector"`
}

type apiPhoneticSymbol struct {
	SymbolValue string `json:"symbolValue"`
}

type apiMeansCollector struct {
	PartOfSpeech  string    `json:"partOfSpeech"`
	PartOfSpeech2 string    `json:"partOfSpeech2"`
	Means         []apiMean `json:"means"`
}

type apiMean struct {
	Value           string           `json:"value"`
	ExampleOri      string           `json:"exampleOri"`
	ExampleTrans    string           `json:"exampleTrans"`
	SimilarWordList []apiSimilarWord `json:"similarWordList"`
}

type apiSimilarWord struct {
	SimilarWordName string `json:"similarWordName"`
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// stripHTML removes markup tags and decodes entities from upstream text
// fragments, which arrive with inline highlighting markup.
func stripHTML(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(htmlTagPattern.ReplaceAllString(text, "")))
}

// ParseSearchResults turns a raw upstream payload into clean entries.
// A payload missing the expected sections yields an empty slice; only
// structurally invalid JSON is an error. Items without a headword are skipped.
func ParseSearchResults(payload []byte) ([]SearchResult, error) {
	var response apiResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("json.Unmarshal > %w", err)}
	}

	items := response.SearchResultMap.SearchResultListMap["WORD"].Items
	results := make([]SearchResult, 0, len(items))
	for _, item := range items {
		word := stripHTML(item.ExpEntry)
		if word == "" {
			continue
		}

		result := SearchResult{
			Word:     word,
			Meanings: []Meaning{},
			Examples: []string{},
		}
		if len(item.SearchPhoneticSymbolList) > 0 {
			result.Pronunciation = stripHTML(item.SearchPhoneticSymbolList[0].SymbolValue)
		}

		for _, collector := range item.MeansCollector {
			for _, mean := range collector.Means {
				value := stripHTML(mean.Value)
				if value == "" {
					continue
				}
				meaning := Meaning{Text: value}
				if collector.PartOfSpeech2 != "" {
					meaning.Text = fmt.Sprintf("[%s] %s", collector.PartOfSpeech2, value)
				}
				for _, similar := range mean.SimilarWordList {
					if name := stripHTML(similar.SimilarWordName); name != "" {
						meaning.RelatedTerms = append(meaning.RelatedTerms, name)
					}
				}
				result.Meanings = append(result.Meanings, meaning)
			}
		}

		for _, collector := range item.MeansCollector {
			for _, mean := range collector.Means {
				if mean.ExampleOri == "" {
					continue
				}
				example := stripHTML(mean.ExampleOri)
				if mean.ExampleTrans != "" {
					example = fmt.Sprintf("%s → %s", example, stripHTML(mean.ExampleTrans))
				}
				result.Examples = append(result.Examples, example)
			}
		}

		results = append(results, result)
	}
	return results, nil
}
