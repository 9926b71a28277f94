package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/at-ishikawa/naverdict/internal/dictionary"
)

const maxPrintedExamples = 3

func newLookupCommand() *cobra.Command {
	dictType := DictType(dictionary.VariantKoreanChinese)
	var rawJSON bool

	command := &cobra.Command{
		Use:   "lookup [word]",
		Short: "Look up a word in the Naver dictionary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			service, closeService, err := newService(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = closeService()
			}()

			payload := service.SearchWord(cmd.Context(), args[0], dictType.String())
			if rawJSON {
				fmt.Println(payload)
				return nil
			}
			return printLookupResult(payload)
		},
	}
	command.Flags().Var(&dictType, "dict", fmt.Sprintf("Dictionary type. Possible values are %v", allDictTypes))
	command.Flags().BoolVar(&rawJSON, "json", false, "Print the raw JSON response")
	return command
}

func printLookupResult(payload string) error {
	var response struct {
		Success   bool                      `json:"success"`
		Error     string                    `json:"error"`
		ErrorType string                    `json:"error_type"`
		Details   string                    `json:"details"`
		Results   []dictionary.SearchResult `json:"results"`
		FromCache bool                      `json:"from_cache"`
	}
	if err := json.Unmarshal([]byte(payload), &response); err != nil {
		return fmt.Errorf("json.Unmarshal > %w", err)
	}

	if !response.Success {
		color.Red("%s (%s)", response.Error, response.ErrorType)
		if response.Details != "" {
			fmt.Println(response.Details)
		}
		return nil
	}
	if len(response.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	for i, result := range response.Results {
		if i > 0 {
			fmt.Println()
		}
		bold.Printf("%d. %s\n", i+1, result.Word)
		if result.Pronunciation != "" {
			cyan.Printf("   [%s]\n", result.Pronunciation)
		}
		for j, meaning := range result.Meanings {
			fmt.Printf("   %d) %s\n", j+1, meaning.Text)
			for _, related := range meaning.RelatedTerms {
				fmt.Printf("      = %s\n", related)
			}
		}
		for j, example := range result.Examples {
			if j >= maxPrintedExamples {
				break
			}
			green.Printf("   • %s\n", example)
		}
	}
	if response.FromCache {
		fmt.Println("\n(from cache)")
	}
	return nil
}
