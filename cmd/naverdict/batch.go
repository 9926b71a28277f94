package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/naverdict/internal/dictionary"
)

func newBatchCommand() *cobra.Command {
	dictType := DictType(dictionary.VariantKoreanChinese)
	var returnCachedJSON bool

	command := &cobra.Command{
		Use:   "batch [words...]",
		Short: "Look up several words in one request, deduplicating repeats",
		Args:  cobra.MinimumNArgs(1),
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

			fmt.Println(service.BatchSearchWords(cmd.Context(), args, dictType.String(), returnCachedJSON))
			return nil
		},
	}
	command.Flags().Var(&dictType, "dict", fmt.Sprintf("Dictionary type. Possible values are %v", allDictTypes))
	command.Flags().BoolVar(&returnCachedJSON, "cached-json", false, "Return raw cached payloads for cache hits")
	return command
}
